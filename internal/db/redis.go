package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/models"
)

const (
	sessionKeyPrefix   = "socket:auth:"
	emergencyKeyPrefix = "emergency:"

	// ReportEventsChannel carries report-change events for out-of-process consumers.
	ReportEventsChannel = "nest:report-events"

	// EmergencyAlertTTL bounds how long an alert hash is kept.
	EmergencyAlertTTL = 24 * time.Hour
)

// RedisStore wraps a redis client used for socket sessions, emergency alerts
// and report-change fan-out.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// SaveSession maps a socket session token to its user for ttl.
func (r *RedisStore) SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := r.Client.Set(ctx, sessionKeyPrefix+token, userID, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LookupSession resolves a socket session token. Unknown or expired tokens
// yield models.ErrNotFound.
func (r *RedisStore) LookupSession(ctx context.Context, token string) (string, error) {
	userID, err := r.Client.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) || (err == nil && userID == "") {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	return userID, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, token string) error {
	return r.Client.Del(ctx, sessionKeyPrefix+token).Err()
}

// EmergencyKey returns a new hash key for an alert raised at ts. Keys of
// alerts raised in the same millisecond differ by their uuid suffix.
func EmergencyKey(ts time.Time) string {
	return emergencyKeyPrefix + strconv.FormatInt(ts.UnixMilli(), 10) + ":" + uuid.NewString()
}

// SaveEmergencyAlert writes the alert hash and its expiry in one transaction.
// The alert id is the key; an alert without one gets a fresh key.
func (r *RedisStore) SaveEmergencyAlert(ctx context.Context, a models.EmergencyAlert) error {
	key := a.ID
	if key == "" {
		key = EmergencyKey(a.Timestamp)
	}
	location := string(a.Location)
	if location == "" {
		location = "null"
	}
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"userId", a.UserID,
			"type", a.Type,
			"description", a.Description,
			"location", location,
			"timestamp", a.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, EmergencyAlertTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save emergency alert: %w", err)
	}
	return nil
}

// PublishReportEvent publishes an encoded report-change event.
func (r *RedisStore) PublishReportEvent(ctx context.Context, payload []byte) error {
	if err := r.Client.Publish(ctx, ReportEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish report event: %w", err)
	}
	return nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
