package handlers

import (
	"fmt"
	"strings"
	"time"
)

const (
	periodToday     = "today"
	periodYesterday = "yesterday"
	periodThisWeek  = "this_week"
	periodLastWeek  = "last_week"
	periodThisMonth = "this_month"
	periodLastMonth = "last_month"
	periodCustom    = "custom"
)

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// startOfWeek returns the most recent Monday.
func startOfWeek(t time.Time, loc *time.Location) time.Time {
	day := startOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// periodRange resolves a named report period to a [from, to) window.
func periodRange(period, startDate, endDate string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	today := startOfDay(now, loc)
	switch strings.TrimSpace(period) {
	case "", periodToday:
		return today, today.AddDate(0, 0, 1), nil
	case periodYesterday:
		return today.AddDate(0, 0, -1), today, nil
	case periodThisWeek:
		week := startOfWeek(now, loc)
		return week, week.AddDate(0, 0, 7), nil
	case periodLastWeek:
		week := startOfWeek(now, loc)
		return week.AddDate(0, 0, -7), week, nil
	case periodThisMonth:
		month := startOfMonth(now, loc)
		return month, month.AddDate(0, 1, 0), nil
	case periodLastMonth:
		month := startOfMonth(now, loc)
		return month.AddDate(0, -1, 0), month, nil
	case periodCustom:
		if strings.TrimSpace(startDate) == "" || strings.TrimSpace(endDate) == "" {
			return time.Time{}, time.Time{}, fmt.Errorf("start_date and end_date are required for a custom period")
		}
		from, err := time.ParseInLocation(dateLayout, strings.TrimSpace(startDate), loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date, expected YYYY-MM-DD")
		}
		to, err := time.ParseInLocation(dateLayout, strings.TrimSpace(endDate), loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date, expected YYYY-MM-DD")
		}
		if to.Before(from) {
			return time.Time{}, time.Time{}, fmt.Errorf("end_date must not be before start_date")
		}
		return from, to.AddDate(0, 0, 1), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("invalid period: %s", period)
	}
}

// dayLabel names a chart day relative to today.
func dayLabel(day, today time.Time) string {
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("Mon")
	}
}

func truncateName(name string, max int) string {
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	return string(runes[:max-3]) + "..."
}
