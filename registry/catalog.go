package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/template"
)

// Catalog is the immutable set of flows known to the service. It is built
// once at startup and is safe for concurrent use.
type Catalog struct {
	flows map[string]*core.Flow
	names []string
	index bleve.Index
}

// flowDocument is the searchable view of a flow.
type flowDocument struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Inputs      string `json:"inputs"`
}

// New builds a catalog. It fails on nil or unnamed flows, duplicate names,
// malformed field declarations and templates that do not compile.
func New(flows ...*core.Flow) (*Catalog, error) {
	eng := template.NewEngine()
	c := &Catalog{flows: make(map[string]*core.Flow, len(flows))}
	for i, f := range flows {
		if f == nil {
			return nil, fmt.Errorf("%w: flow %d is nil", ErrInvalidFlow, i)
		}
		if err := f.Check(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFlow, err)
		}
		if _, ok := c.flows[f.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateFlow, f.Name)
		}
		if err := eng.Compile(f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFlow, err)
		}
		c.flows[f.Name] = f.Copy()
		c.names = append(c.names, f.Name)
	}
	sort.Strings(c.names)

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("catalog index: %w", err)
	}
	batch := index.NewBatch()
	for _, name := range c.names {
		if err := batch.Index(name, document(c.flows[name])); err != nil {
			return nil, fmt.Errorf("catalog index %s: %w", name, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("catalog index: %w", err)
	}
	c.index = index
	return c, nil
}

// MustNew is like New but panics on error. Use it for built-in catalogs.
func MustNew(flows ...*core.Flow) *Catalog {
	c, err := New(flows...)
	if err != nil {
		panic(err)
	}
	return c
}

func document(f *core.Flow) flowDocument {
	inputs := make([]string, 0, len(f.Input))
	for _, fd := range f.Input {
		inputs = append(inputs, fd.Name+" "+fd.Description)
	}
	return flowDocument{
		Name:        strings.ReplaceAll(f.Name, "-", " "),
		Title:       f.Title,
		Description: f.Description,
		Category:    f.Category,
		Inputs:      strings.Join(inputs, " "),
	}
}

// Get returns the named flow. The returned flow is shared and must not be modified.
func (c *Catalog) Get(name string) (*core.Flow, bool) {
	f, ok := c.flows[name]
	return f, ok
}

// Names returns all flow names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// List returns copies of all flows sorted by name.
func (c *Catalog) List() []*core.Flow {
	out := make([]*core.Flow, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.flows[name].Copy())
	}
	return out
}

// Len returns the number of flows.
func (c *Catalog) Len() int { return len(c.names) }

// Category returns copies of the flows in category, sorted by name.
func (c *Catalog) Category(category string) []*core.Flow {
	var out []*core.Flow
	for _, name := range c.names {
		if f := c.flows[name]; strings.EqualFold(f.Category, category) {
			out = append(out, f.Copy())
		}
	}
	return out
}

// Search returns flows matching text, best match first. An empty text
// matches every flow. limit <= 0 means no limit.
func (c *Catalog) Search(text string, limit int) ([]*core.Flow, error) {
	text = strings.TrimSpace(text)
	if limit <= 0 || limit > len(c.names) {
		limit = len(c.names)
	}
	if text == "" {
		return c.List()[:limit], nil
	}
	if limit == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(searchQuery(text), limit, 0, false)
	res, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	out := make([]*core.Flow, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if f, ok := c.flows[hit.ID]; ok {
			out = append(out, f.Copy())
		}
	}
	return out, nil
}

func searchQuery(text string) query.Query {
	match := bleve.NewMatchQuery(text)
	match.SetFuzziness(1)
	queries := []query.Query{match}
	for _, term := range strings.Fields(strings.ToLower(text)) {
		queries = append(queries, bleve.NewPrefixQuery(term))
	}
	return bleve.NewDisjunctionQuery(queries...)
}
