package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "quill:analytics:runs"

// redisPage is how many members Query reads per round trip.
const redisPage = 5000

// RedisStore keeps run records as JSON members of a sorted set scored by
// Unix time. Aggregation happens in memory.
type RedisStore struct {
	client     redis.UniversalClient
	key        string
	maxRecords int64
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithMaxRecords keeps only the newest n records (0 = unbounded).
func WithMaxRecords(n int) RedisOption {
	return func(r *RedisStore) {
		r.maxRecords = int64(n)
	}
}

// NewRedisStore creates a store on client under key.
func NewRedisStore(client redis.UniversalClient, key string, opts ...RedisOption) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	r := &RedisStore{client: client, key: key}
	for _, o := range opts {
		o(r)
	}
	return r
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// Record implements Store. With a record limit the add and the trim run in
// one transaction.
func (r *RedisStore) Record(ctx context.Context, rec RunRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	member, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.key, redis.Z{Score: score(rec.At), Member: string(member)})
		if r.maxRecords > 0 {
			pipe.ZRemRangeByRank(ctx, r.key, 0, -r.maxRecords-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("analytics record: %w", err)
	}
	return nil
}

// Query implements Store.
func (r *RedisStore) Query(ctx context.Context, q Query) ([]Aggregate, error) {
	lo, hi := "-inf", "+inf"
	if !q.From.IsZero() {
		lo = strconv.FormatFloat(score(q.From), 'f', -1, 64)
	}
	if !q.To.IsZero() {
		hi = strconv.FormatFloat(score(q.To), 'f', -1, 64)
	}
	var records []RunRecord
	for offset := int64(0); ; offset += redisPage {
		members, err := r.client.ZRangeArgs(ctx, redis.ZRangeArgs{
			Key:     r.key,
			Start:   lo,
			Stop:    hi,
			ByScore: true,
			Offset:  offset,
			Count:   redisPage,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("analytics query: %w", err)
		}
		for _, m := range members {
			var rec RunRecord
			// skip members written by an incompatible version
			if json.Unmarshal([]byte(m), &rec) == nil {
				records = append(records, rec)
			}
		}
		if len(members) < redisPage {
			break
		}
	}
	return aggregate(records, q), nil
}

// Prune removes members scored before the given time.
func (r *RedisStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	hi := "(" + strconv.FormatFloat(score(before), 'f', -1, 64)
	n, err := r.client.ZRemRangeByScore(ctx, r.key, "-inf", hi).Result()
	if err != nil {
		return 0, fmt.Errorf("analytics prune: %w", err)
	}
	return n, nil
}
