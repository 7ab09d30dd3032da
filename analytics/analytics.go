// Package analytics records flow runs and answers aggregate queries about them.
package analytics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// RunRecord is a single recorded run of a flow.
type RunRecord struct {
	RequestID    string    `json:"request_id"`
	Flow         string    `json:"flow"`
	Model        string    `json:"model,omitempty"`
	Stage        string    `json:"stage"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Success      bool      `json:"success"`
	At           time.Time `json:"at"`
}

// Recorder receives run records. The executor calls it once per run.
type Recorder interface {
	Record(ctx context.Context, r RunRecord) error
}

// Store is the interface for recording and querying runs.
type Store interface {
	Recorder
	Query(ctx context.Context, q Query) ([]Aggregate, error)
}

// Query filters and groups runs for aggregation.
type Query struct {
	Flow    string
	Model   string
	From    time.Time
	To      time.Time
	GroupBy string // "flow", "model", "error", "stage", "day", "hour"
	Limit   int
}

// Aggregate is a bucketed aggregate (e.g. per flow or per day).
type Aggregate struct {
	Key               string  `json:"key"`
	Runs              int64   `json:"runs"`
	SuccessCount      int64   `json:"success_count"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
}

// MemoryStore is an in-memory implementation (bounded slice, no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	max     int
	records []RunRecord
}

// NewMemoryStore creates an in-memory store that keeps at most max records (0 = unbounded).
func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{max: max, records: make([]RunRecord, 0, 256)}
}

// Record implements Store.
func (m *MemoryStore) Record(ctx context.Context, r RunRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	if m.max > 0 && len(m.records) > m.max {
		m.records = m.records[len(m.records)-m.max:]
	}
	return nil
}

// Query implements Store.
func (m *MemoryStore) Query(ctx context.Context, q Query) ([]Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate(m.records, q), nil
}

// Prune drops records recorded before the given time.
func (m *MemoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, r := range m.records {
		if !r.At.Before(before) {
			kept = append(kept, r)
		}
	}
	removed := int64(len(m.records) - len(kept))
	m.records = kept
	return removed, nil
}

func groupKey(r RunRecord, groupBy string) string {
	switch groupBy {
	case "flow":
		return r.Flow
	case "model":
		return r.Model
	case "error":
		if r.ErrorKind == "" {
			return "none"
		}
		return r.ErrorKind
	case "stage":
		return r.Stage
	case "day":
		return r.At.UTC().Format("2006-01-02")
	case "hour":
		return r.At.UTC().Format("2006-01-02-15")
	default:
		return "all"
	}
}

// aggregate filters records by q and groups them. Results are ordered by run
// count, then key.
func aggregate(records []RunRecord, q Query) []Aggregate {
	agg := make(map[string]*Aggregate)
	latency := make(map[string]int64)
	for _, r := range records {
		if q.Flow != "" && r.Flow != q.Flow {
			continue
		}
		if q.Model != "" && r.Model != q.Model {
			continue
		}
		if !q.From.IsZero() && r.At.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && r.At.After(q.To) {
			continue
		}
		k := groupKey(r, q.GroupBy)
		a := agg[k]
		if a == nil {
			a = &Aggregate{Key: k}
			agg[k] = a
		}
		a.Runs++
		if r.Success {
			a.SuccessCount++
			latency[k] += r.LatencyMs
		}
		a.TotalInputTokens += int64(r.InputTokens)
		a.TotalOutputTokens += int64(r.OutputTokens)
	}
	out := make([]Aggregate, 0, len(agg))
	for k, a := range agg {
		if a.SuccessCount > 0 {
			a.AvgLatencyMs = float64(latency[k]) / float64(a.SuccessCount)
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Runs != out[j].Runs {
			return out[i].Runs > out[j].Runs
		}
		return out[i].Key < out[j].Key
	})
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Multi sends every record to each non-nil recorder and joins their errors.
func Multi(recorders ...Recorder) Recorder {
	var rs multiRecorder
	for _, r := range recorders {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return rs
}

type multiRecorder []Recorder

func (m multiRecorder) Record(ctx context.Context, r RunRecord) error {
	var errs []error
	for _, rec := range m {
		if err := rec.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
