package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/klejdi94/quill/core"
)

// ErrBlobNotFound is returned by BlobStore.Get for missing keys.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is a minimal key-value store for S3-compatible backends (e.g. AWS S3, MinIO).
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// S3Store keeps flows in a BlobStore under prefix/flows/{name}.json.
type S3Store struct {
	store  BlobStore
	prefix string
}

// NewS3Store creates a store using the given BlobStore (e.g. from registry/s3blob) and key prefix.
func NewS3Store(store BlobStore, prefix string) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{store: store, prefix: prefix + "flows/"}
}

func (s *S3Store) flowKey(name string) string {
	return s.prefix + name + ".json"
}

// Put uploads a flow document.
func (s *S3Store) Put(ctx context.Context, flow *core.Flow) error {
	if flow == nil {
		return fmt.Errorf("s3 store: flow is nil")
	}
	if err := flow.Check(); err != nil {
		return fmt.Errorf("s3 store: %w: %w", ErrInvalidFlow, err)
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("s3 store encode: %w", err)
	}
	return s.store.Put(ctx, s.flowKey(flow.Name), data)
}

// Delete removes a flow document.
func (s *S3Store) Delete(ctx context.Context, name string) error {
	if _, err := s.store.Get(ctx, s.flowKey(name)); err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return &core.UnknownFlowError{Name: name}
		}
		return err
	}
	return s.store.Delete(ctx, s.flowKey(name))
}

// Load downloads every flow document under the prefix.
func (s *S3Store) Load(ctx context.Context) ([]*core.Flow, error) {
	keys, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	var out []*core.Flow
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") || strings.Contains(strings.TrimPrefix(key, s.prefix), "/") {
			continue
		}
		data, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("s3 store %s: %w", key, err)
		}
		var f core.Flow
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("s3 store decode %s: %w", key, err)
		}
		out = append(out, &f)
	}
	return out, nil
}
