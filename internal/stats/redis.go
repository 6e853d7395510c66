package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket granularities.
const (
	BucketMinute = "minute"
	BucketNone   = "none"
)

// RedisStore pipelines counters into Redis hashes.
type RedisStore struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	bucket     string
	trackPaths bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithTTL sets the expiry of time bucket keys. Totals never expire.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// WithBucket selects "minute" or "none".
func WithBucket(bucket string) RedisOption {
	return func(s *RedisStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

// WithTrackPaths counts requests per method and path.
func WithTrackPaths(track bool) RedisOption {
	return func(s *RedisStore) { s.trackPaths = track }
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "avamux:stats",
		ttl:    24 * time.Hour,
		bucket: BucketMinute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects to address and verifies the connection.
func DialRedis(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// Record implements Recorder.
func (s *RedisStore) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	class := ev.Class()

	pipe := s.rdb.Pipeline()

	totalKey := s.key("total")
	pipe.HIncrBy(ctx, totalKey, "requests", 1)
	pipe.HIncrBy(ctx, totalKey, class, 1)
	pipe.HIncrBy(ctx, totalKey, "duration_ms", ev.Duration.Milliseconds())

	if ev.Backend != "" {
		backendKey := s.key("backend")
		pipe.HIncrBy(ctx, backendKey, ev.Backend+":requests", 1)
		pipe.HIncrBy(ctx, backendKey, ev.Backend+":"+class, 1)
	}

	if s.bucket == BucketMinute {
		bucketKey := s.key("minute", at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, "requests", 1)
		pipe.HIncrBy(ctx, bucketKey, class, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if s.trackPaths {
		if route := routeField(ev.Method, ev.Path); route != "" {
			pipe.HIncrBy(ctx, s.key("route"), route+":"+class, 1)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Summary implements Summarizer.
func (s *RedisStore) Summary(ctx context.Context) (Summary, error) {
	out := newSummary()

	pipe := s.rdb.Pipeline()
	totalCmd := pipe.HGetAll(ctx, s.key("total"))
	backendCmd := pipe.HGetAll(ctx, s.key("backend"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return out, err
	}

	for field, raw := range totalCmd.Val() {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch field {
		case "requests":
			out.Requests = n
		case "duration_ms":
			out.DurationMs = n
		default:
			out.ByClass[field] = n
		}
	}

	for field, raw := range backendCmd.Val() {
		i := strings.LastIndex(field, ":")
		if i <= 0 {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		addr, counter := field[:i], field[i+1:]
		b, ok := out.ByBackend[addr]
		if !ok {
			b = make(map[string]int64)
			out.ByBackend[addr] = b
		}
		b[counter] = n
	}

	return out, nil
}

// Bucket returns the counters of the minute bucket containing at.
func (s *RedisStore) Bucket(ctx context.Context, at time.Time) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, s.key("minute", at.UTC().Format("200601021504"))).Result()
}

// Ping checks that the Redis server answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
