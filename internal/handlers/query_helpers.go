package handlers

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const dateLayout = "2006-01-02"

// containsPattern builds a case-insensitive substring match; user input is quoted.
func containsPattern(term string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(strings.TrimSpace(term)), "$options": "i"}
}

func searchFilter(term string, fields ...string) []bson.M {
	pattern := containsPattern(term)
	or := make([]bson.M, 0, len(fields))
	for _, f := range fields {
		or = append(or, bson.M{f: pattern})
	}
	return or
}

func parseBoolQuery(raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid boolean: %s", raw)
	}
	return &v, nil
}

// parseDateRange turns inclusive YYYY-MM-DD bounds into a [from, to) filter in loc.
func parseDateRange(fromStr, toStr string, loc *time.Location) (bson.M, error) {
	rng := bson.M{}
	if s := strings.TrimSpace(fromStr); s != "" {
		from, err := time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid date_from, expected YYYY-MM-DD")
		}
		rng["$gte"] = from.UTC()
	}
	if s := strings.TrimSpace(toStr); s != "" {
		to, err := time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid date_to, expected YYYY-MM-DD")
		}
		rng["$lt"] = to.AddDate(0, 0, 1).UTC()
	}
	if from, ok := rng["$gte"].(time.Time); ok {
		if to, ok := rng["$lt"].(time.Time); ok && !to.After(from) {
			return nil, fmt.Errorf("date_to must not be before date_from")
		}
	}
	if len(rng) == 0 {
		return nil, nil
	}
	return rng, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
