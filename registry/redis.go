package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/klejdi94/quill/core"
)

const (
	redisKeyFlow  = "flow:%s"
	redisKeyIndex = "index:flows"
)

// RedisStore keeps flows in Redis. Keys: flow:name (JSON document),
// index:flows (SET of names).
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store using the given Redis client. Optional key prefix (e.g. "quill:").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(format string, a ...interface{}) string {
	return r.prefix + fmt.Sprintf(format, a...)
}

// Put saves a flow and adds it to the index.
func (r *RedisStore) Put(ctx context.Context, flow *core.Flow) error {
	if flow == nil {
		return fmt.Errorf("redis store: flow is nil")
	}
	if err := flow.Check(); err != nil {
		return fmt.Errorf("redis store: %w: %w", ErrInvalidFlow, err)
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("redis store encode: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(redisKeyFlow, flow.Name), data, 0)
		pipe.SAdd(ctx, r.key(redisKeyIndex), flow.Name)
		return nil
	})
	return err
}

// Delete removes a flow and its index entry.
func (r *RedisStore) Delete(ctx context.Context, name string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.key(redisKeyFlow, name))
		pipe.SRem(ctx, r.key(redisKeyIndex), name)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return &core.UnknownFlowError{Name: name}
	}
	return nil
}

// Load returns every indexed flow sorted by name. Index entries whose
// document has gone are skipped.
func (r *RedisStore) Load(ctx context.Context) ([]*core.Flow, error) {
	names, err := r.client.SMembers(ctx, r.key(redisKeyIndex)).Result()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = r.key(redisKeyFlow, name)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*core.Flow, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var f core.Flow
		if err := json.Unmarshal([]byte(s), &f); err != nil {
			return nil, fmt.Errorf("redis store decode %s: %w", names[i], err)
		}
		out = append(out, &f)
	}
	return out, nil
}
