package stats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Record(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, Event{Outcome: "passthrough", Method: "GET", Path: "/api/x"}))
	require.NoError(t, m.Record(ctx, Event{Outcome: "denied", Method: "GET", Path: "/api/x"}))
	require.NoError(t, m.Record(ctx, Event{Outcome: "denied", Class: "auth", Method: "POST", Path: "/login"}))

	assert.Equal(t, int64(2), m.Total("denied"))
	assert.Equal(t, int64(1), m.Total("passthrough"))

	classes := m.ByClass()
	assert.Equal(t, int64(1), classes["public"]["denied"])
	assert.Equal(t, int64(1), classes["public"]["passthrough"])
	assert.Equal(t, int64(1), classes["auth"]["denied"])
}

func TestRedis_Record(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedis(rdb, WithPrefix("gate:"), WithTTL(time.Hour), WithTrackKeys(true))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := Event{Key: "ip:1.2.3.4:/api/x", Outcome: "denied", Class: "protected", Method: "POST", Path: "/chat/1", At: at}

	require.NoError(t, s.Record(context.Background(), ev))
	require.NoError(t, s.Record(context.Background(), ev))

	assert.Equal(t, "2", mr.HGet("gate:total", "denied"))
	assert.Equal(t, "2", mr.HGet("gate:minute:202601020304", "denied"))
	assert.Equal(t, "2", mr.HGet("gate:class", "protected:denied"))
	assert.Equal(t, "2", mr.HGet("gate:key:ip:1.2.3.4:/api/x", "denied"))
	assert.Equal(t, time.Hour, mr.TTL("gate:minute:202601020304"))
}

func TestRedis_ClassHashIgnoresRawPaths(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedis(rdb, WithPrefix("gate"))
	for i := 0; i < 50; i++ {
		ev := Event{Outcome: "passthrough", Method: "GET", Path: fmt.Sprintf("/chat/%d", i)}
		require.NoError(t, s.Record(context.Background(), ev))
	}

	fields, err := rdb.HKeys(context.Background(), "gate:class").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"public:passthrough"}, fields)
	assert.False(t, mr.Exists("gate:route"))
}

func TestRedis_RecordReportsBackendErrors(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	err = NewRedis(rdb).Record(context.Background(), Event{Outcome: "passthrough"})
	assert.Error(t, err)
}

func TestRedis_NilClientIsNoop(t *testing.T) {
	assert.NoError(t, NewRedis(nil).Record(context.Background(), Event{}))
}
