package activity

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"stockpos/internal/logger"
)

var excludedPrefixes = []string{"/static/", "/public/", "/uploads/", "/api/auth/ping", "/health", "/favicon.ico"}

// ShouldTrack reports whether a request counts as user activity.
func ShouldTrack(method, path string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// Tracker records users' last_activity. Writes happen off the request path
// and, when Redis is configured, at most once per throttle window per user.
type Tracker struct {
	db       *mongo.Database
	redis    *redis.Client
	throttle time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewTracker(db *mongo.Database, rdb *redis.Client, throttle time.Duration) *Tracker {
	return &Tracker{
		db:       db,
		redis:    rdb,
		throttle: throttle,
		log:      logger.Named("activity"),
		now:      time.Now,
	}
}

// Touch schedules a last_activity update for the user.
func (t *Tracker) Touch(userID primitive.ObjectID) {
	if t == nil || userID.IsZero() {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.record(ctx, userID); err != nil {
			t.log.Warn("activity update failed", zap.String("user_id", userID.Hex()), zap.Error(err))
		}
	}()
}

// Wait blocks until scheduled updates have finished.
func (t *Tracker) Wait() {
	if t != nil {
		t.wg.Wait()
	}
}

func (t *Tracker) record(ctx context.Context, userID primitive.ObjectID) error {
	if !t.acquire(ctx, userID) {
		return nil
	}
	_, err := t.db.Collection("users").UpdateByID(ctx, userID, bson.M{
		"$set": bson.M{"last_activity": t.now().UTC()},
	})
	return err
}

func (t *Tracker) acquire(ctx context.Context, userID primitive.ObjectID) bool {
	if t.redis == nil || t.throttle <= 0 {
		return true
	}
	ok, err := t.redis.SetNX(ctx, "activity:"+userID.Hex(), 1, t.throttle).Result()
	if err != nil {
		return true
	}
	return ok
}
