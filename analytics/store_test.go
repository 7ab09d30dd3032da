package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Server-backed stores run only when QUILL_TEST_REDIS or QUILL_TEST_POSTGRES
// is set.

// checkStore expects the records written by seed.
func checkStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	seed(t, s)

	byFlow, err := s.Query(ctx, Query{GroupBy: "flow"})
	require.NoError(t, err)
	require.Len(t, byFlow, 2)
	assert.Equal(t, "topic-hashtags", byFlow[0].Key)
	assert.Equal(t, int64(3), byFlow[0].Runs)
	assert.Equal(t, int64(2), byFlow[0].SuccessCount)
	assert.Equal(t, 200.0, byFlow[0].AvgLatencyMs)
	assert.Equal(t, int64(30), byFlow[0].TotalInputTokens)

	byError, err := s.Query(ctx, Query{GroupBy: "error", Flow: "topic-hashtags"})
	require.NoError(t, err)
	require.Len(t, byError, 2)
	assert.Equal(t, Aggregate{Key: "none", Runs: 2, SuccessCount: 2, AvgLatencyMs: 200, TotalInputTokens: 30, TotalOutputTokens: 10}, byError[0])

	window, err := s.Query(ctx, Query{
		From: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, int64(2), window[0].Runs)

	p, ok := s.(Pruner)
	require.True(t, ok)
	n, err := p.Prune(ctx, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0].Runs)
}

func TestMemoryStore_Contract(t *testing.T) {
	checkStore(t, NewMemoryStore(0))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("QUILL_TEST_REDIS")
	if addr == "" {
		t.Skip("QUILL_TEST_REDIS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	key := fmt.Sprintf("quill-test:runs:%d", time.Now().UnixNano())
	defer rdb.Del(context.Background(), key)

	checkStore(t, NewRedisStore(rdb, key))
}

func TestRedisStore_MaxRecords(t *testing.T) {
	addr := os.Getenv("QUILL_TEST_REDIS")
	if addr == "" {
		t.Skip("QUILL_TEST_REDIS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	key := fmt.Sprintf("quill-test:runs:%d", time.Now().UnixNano())
	defer rdb.Del(context.Background(), key)

	s := NewRedisStore(rdb, key, WithMaxRecords(2))
	seed(t, s)
	n, err := rdb.ZCard(context.Background(), key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("QUILL_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("QUILL_TEST_POSTGRES not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	table := fmt.Sprintf("flow_runs_test_%d", time.Now().UnixNano())
	defer db.Exec(`DROP TABLE IF EXISTS ` + pq.QuoteIdentifier(table))

	s, err := NewPostgresStore(context.Background(), db, table)
	require.NoError(t, err)
	checkStore(t, s)
}

func TestWhere(t *testing.T) {
	var w where
	assert.Equal(t, "TRUE", w.String())
	w.add("flow = $%d", "slogan")
	w.add("at >= $%d", time.Unix(0, 0))
	assert.Equal(t, "flow = $1 AND at >= $2", w.String())
	assert.Len(t, w.args, 2)
}
