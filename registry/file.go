package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/klejdi94/quill/core"
)

// FileStore keeps one flow document per file in a directory. Files ending in
// .yaml, .yml or .json are read; Put always writes {name}.yaml.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

var flowExtensions = []string{".yaml", ".yml", ".json"}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Load decodes every flow document in the directory.
func (f *FileStore) Load(ctx context.Context) ([]*core.Flow, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	var out []*core.Flow
	for _, e := range entries {
		if e.IsDir() || !hasFlowExtension(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(f.dir, e.Name())
		flow, err := ReadFlowFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, flow)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Put writes the flow as YAML.
func (f *FileStore) Put(ctx context.Context, flow *core.Flow) error {
	if flow == nil {
		return fmt.Errorf("file store: flow is nil")
	}
	if err := flow.Check(); err != nil {
		return fmt.Errorf("file store: %w: %w", ErrInvalidFlow, err)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(flow); err != nil {
		return fmt.Errorf("file store encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("file store encode: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ext := range flowExtensions[1:] {
		_ = os.Remove(filepath.Join(f.dir, flow.Name+ext))
	}
	return os.WriteFile(filepath.Join(f.dir, flow.Name+".yaml"), buf.Bytes(), 0644)
}

// Delete removes every document for name.
func (f *FileStore) Delete(ctx context.Context, name string) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("file store: invalid flow name %q", name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for _, ext := range flowExtensions {
		err := os.Remove(filepath.Join(f.dir, name+ext))
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, os.ErrNotExist):
			return err
		}
	}
	if !found {
		return &core.UnknownFlowError{Name: name}
	}
	return nil
}

// ReadFlowFile decodes one YAML or JSON flow document.
func ReadFlowFile(path string) (*core.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var flow core.Flow
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&flow); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if flow.Name == "" {
		flow.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &flow, nil
}

func hasFlowExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range flowExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
