package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/slawatch/pkg/models"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, "test"), mr
}

func TestRedisStoreRecordAndGet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	rec, err := store.Get(ctx, "T-1", models.AlertKindRiskDetected)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = store.Record(ctx, "T-1", models.AlertKindRiskDetected, 0, t0)
	require.NoError(t, err)
	got, err := store.Record(ctx, "T-1", models.AlertKindRiskDetected, 2, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)

	rec, err = store.Get(ctx, "T-1", models.AlertKindRiskDetected)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, t0.Add(time.Minute), rec.LastSent)
	assert.Equal(t, 2, rec.Count)
	assert.Equal(t, 2, rec.Level)

	assert.Equal(t, SuppressionIdleTTL, mr.TTL("test:suppress:T-1:risk_detected"))
	mr.FastForward(SuppressionIdleTTL + time.Second)
	rec, err = store.Get(ctx, "T-1", models.AlertKindRiskDetected)
	require.NoError(t, err)
	assert.Nil(t, rec, "idle records expire")
}

func TestRedisStoreDeleteBeforeAndList(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)
	mr.Set("test:unrelated", "x")

	_, err := store.Record(ctx, "ACME:T:9", models.AlertKindBreachOccurred, 0, t0.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = store.Record(ctx, "ACME:T:9", models.AlertKindRiskDetected, 0, t0)
	require.NoError(t, err)
	_, err = store.Record(ctx, "B-1", models.AlertKindRiskDetected, 0, t0)
	require.NoError(t, err)

	recs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "ACME:T:9", recs[0].TicketID)
	assert.Equal(t, models.AlertKindBreachOccurred, recs[0].Kind)
	assert.Equal(t, "B-1", recs[2].TicketID)

	n, err := store.DeleteBefore(ctx, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists("test:suppress:ACME:T:9:breach_occurred"))
	assert.True(t, mr.Exists("test:unrelated"))

	recs, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRedisStoreParseKey(t *testing.T) {
	store := NewRedisStoreWithClient(redis.NewClient(&redis.Options{}), "test")

	id, kind, ok := store.parseKey(store.key("ACME:T:9", models.AlertKindEscalationRequired))
	require.True(t, ok)
	assert.Equal(t, "ACME:T:9", id)
	assert.Equal(t, models.AlertKindEscalationRequired, kind)

	_, _, ok = store.parseKey("other:suppress:T-1:risk_detected")
	assert.False(t, ok)
	_, _, ok = store.parseKey("test:suppress:nokind")
	assert.False(t, ok)
}

func TestSuppressionTrackerOverRedis(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)
	clock := &fakeClock{now: t0}
	s := NewSuppressionTracker(store, 30*time.Minute, nil, clock.Now)

	s.RecordSent(ctx, escalated("T-1", 1))
	clock.Advance(time.Minute)
	assert.True(t, s.ShouldSuppress(ctx, escalated("T-1", 1)))
	assert.False(t, s.ShouldSuppress(ctx, escalated("T-1", 2)))
}

func TestNewRedisStoreConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisStoreOptions{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, "slawatch", store.prefix)

	mr.Close()
	_, err = NewRedisStore(context.Background(), RedisStoreOptions{Address: mr.Addr()})
	assert.Error(t, err)
}
