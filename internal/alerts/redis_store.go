package alerts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mr-karan/slawatch/pkg/models"
)

// RedisStore keeps suppression records in Redis so several engine instances share
// one cool-down map. Each (ticket, kind) pair is a hash expiring after 24h idle.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStoreOptions configures a RedisStore.
type RedisStoreOptions struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisStoreOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, opts.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "slawatch"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: SuppressionIdleTTL}
}

// Close releases the Redis connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(ticketID string, kind models.AlertKind) string {
	return fmt.Sprintf("%s:suppress:%s:%s", r.prefix, ticketID, kind)
}

func (r *RedisStore) parseKey(key string) (string, models.AlertKind, bool) {
	rest := strings.TrimPrefix(key, r.prefix+":suppress:")
	i := strings.LastIndex(rest, ":")
	if i <= 0 || rest == key {
		return "", "", false
	}
	return rest[:i], models.AlertKind(rest[i+1:]), true
}

// Get implements SuppressionStore.
func (r *RedisStore) Get(ctx context.Context, ticketID string, kind models.AlertKind) (*models.SuppressionRecord, error) {
	vals, err := r.client.HGetAll(ctx, r.key(ticketID, kind)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read suppression record: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	rec, err := decodeRecord(ticketID, kind, vals)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Record implements SuppressionStore.
func (r *RedisStore) Record(ctx context.Context, ticketID string, kind models.AlertKind, level int, ts time.Time) (models.SuppressionRecord, error) {
	key := r.key(ticketID, kind)
	var count *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "last_sent", ts.UnixNano(), "level", level)
		count = pipe.HIncrBy(ctx, key, "count", 1)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return models.SuppressionRecord{}, fmt.Errorf("failed to record suppression: %w", err)
	}
	return models.SuppressionRecord{
		TicketID: ticketID,
		Kind:     kind,
		LastSent: ts,
		Count:    int(count.Val()),
		Level:    level,
	}, nil
}

// DeleteBefore implements SuppressionStore. Keys also expire on their own.
func (r *RedisStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	recs, keys, err := r.scan(ctx)
	if err != nil {
		return 0, err
	}
	var stale []string
	for i, rec := range recs {
		if rec.LastSent.Before(cutoff) {
			stale = append(stale, keys[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := r.client.Del(ctx, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete suppression records: %w", err)
	}
	return int(n), nil
}

// List implements SuppressionStore.
func (r *RedisStore) List(ctx context.Context) ([]models.SuppressionRecord, error) {
	recs, _, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	sortRecords(recs)
	return recs, nil
}

func (r *RedisStore) scan(ctx context.Context) ([]models.SuppressionRecord, []string, error) {
	var (
		recs []models.SuppressionRecord
		keys []string
	)
	iter := r.client.Scan(ctx, 0, r.prefix+":suppress:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ticketID, kind, ok := r.parseKey(key)
		if !ok {
			continue
		}
		vals, err := r.client.HGetAll(ctx, key).Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		rec, err := decodeRecord(ticketID, kind, vals)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to scan suppression records: %w", err)
	}
	return recs, keys, nil
}

func decodeRecord(ticketID string, kind models.AlertKind, vals map[string]string) (models.SuppressionRecord, error) {
	ns, err := strconv.ParseInt(vals["last_sent"], 10, 64)
	if err != nil {
		return models.SuppressionRecord{}, fmt.Errorf("invalid last_sent for %s/%s: %w", ticketID, kind, err)
	}
	count, _ := strconv.Atoi(vals["count"])
	level, _ := strconv.Atoi(vals["level"])
	return models.SuppressionRecord{
		TicketID: ticketID,
		Kind:     kind,
		LastSent: time.Unix(0, ns).UTC(),
		Count:    count,
		Level:    level,
	}, nil
}
