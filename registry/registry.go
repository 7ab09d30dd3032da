// Package registry holds the flow catalog and the stores flows are published to.
package registry

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/klejdi94/quill/core"
)

var (
	// ErrDuplicateFlow is returned when two flows share a name.
	ErrDuplicateFlow = errors.New("duplicate flow")
	// ErrInvalidFlow is returned for flows that fail their declaration checks.
	ErrInvalidFlow = errors.New("invalid flow")
)

// Source provides flow definitions at startup.
type Source interface {
	Load(ctx context.Context) ([]*core.Flow, error)
}

// Store is a Source that flows can be published to and removed from.
type Store interface {
	Source
	Put(ctx context.Context, flow *core.Flow) error
	Delete(ctx context.Context, name string) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]*core.Flow, error)

// Load implements Source.
func (f SourceFunc) Load(ctx context.Context) ([]*core.Flow, error) { return f(ctx) }

// Static returns a Source that always yields flows.
func Static(flows ...*core.Flow) Source {
	return SourceFunc(func(context.Context) ([]*core.Flow, error) {
		return flows, nil
	})
}

// Load reads all sources concurrently and builds a catalog from the union.
// When several sources define the same name the later source wins.
func Load(ctx context.Context, sources ...Source) (*Catalog, error) {
	results := make([][]*core.Flow, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			flows, err := src.Load(gctx)
			if err != nil {
				return fmt.Errorf("source %d: %w", i, err)
			}
			results[i] = flows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var order []string
	merged := make(map[string]*core.Flow)
	for _, flows := range results {
		seen := make(map[string]bool, len(flows))
		for _, f := range flows {
			if f == nil {
				return nil, fmt.Errorf("%w: nil flow", ErrInvalidFlow)
			}
			if seen[f.Name] {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateFlow, f.Name)
			}
			seen[f.Name] = true
			if _, ok := merged[f.Name]; !ok {
				order = append(order, f.Name)
			}
			merged[f.Name] = f
		}
	}
	flows := make([]*core.Flow, 0, len(order))
	for _, name := range order {
		flows = append(flows, merged[name])
	}
	return New(flows...)
}

// Publish writes every flow of the catalog to dst.
func Publish(ctx context.Context, dst Store, c *Catalog) error {
	for _, f := range c.List() {
		if err := dst.Put(ctx, f); err != nil {
			return fmt.Errorf("publish %s: %w", f.Name, err)
		}
	}
	return nil
}
