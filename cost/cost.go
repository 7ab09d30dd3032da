// Package cost estimates the USD cost of flow runs from token usage.
package cost

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/klejdi94/quill/analytics"
	"github.com/klejdi94/quill/core"
)

// Price is the USD price per 1K tokens.
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Table maps model names to prices. Lookups fall back to the longest
// registered prefix, so "gpt-4o-mini-2024-07-18" matches "gpt-4o-mini".
type Table struct {
	mu     sync.RWMutex
	prices map[string]Price
}

// NewTable creates an empty pricing table.
func NewTable() *Table {
	return &Table{prices: make(map[string]Price)}
}

// DefaultTable returns list prices for the models the built-in providers default to.
func DefaultTable() *Table {
	t := NewTable()
	t.Set("gpt-4o-mini", Price{InputPer1K: 0.00015, OutputPer1K: 0.0006})
	t.Set("gpt-4o", Price{InputPer1K: 0.0025, OutputPer1K: 0.01})
	t.Set("gpt-4.1-mini", Price{InputPer1K: 0.0004, OutputPer1K: 0.0016})
	t.Set("gpt-4.1", Price{InputPer1K: 0.002, OutputPer1K: 0.008})
	t.Set("claude-3-5-haiku", Price{InputPer1K: 0.0008, OutputPer1K: 0.004})
	t.Set("claude-sonnet-4", Price{InputPer1K: 0.003, OutputPer1K: 0.015})
	t.Set("gemini-2.0-flash", Price{InputPer1K: 0.0001, OutputPer1K: 0.0004})
	t.Set("gemini-2.5-flash", Price{InputPer1K: 0.0003, OutputPer1K: 0.0025})
	t.Set("llama", Price{InputPer1K: 0.0001, OutputPer1K: 0.0001})
	return t
}

// Set registers the price of a model or model prefix.
func (t *Table) Set(model string, p Price) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[model] = p
}

// Lookup returns the price of model.
func (t *Table) Lookup(model string) (Price, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.prices[model]; ok {
		return p, true
	}
	best := ""
	for prefix := range t.prices {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Price{}, false
	}
	return t.prices[best], true
}

// Estimate returns the cost of usage on model; zero for unknown models.
func (t *Table) Estimate(model string, usage core.Usage) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)/1000*p.InputPer1K + float64(usage.CompletionTokens)/1000*p.OutputPer1K
}

// Tracker accumulates spend per flow. It is an analytics.Recorder, so the
// executor feeds it directly, and a prometheus.Collector.
type Tracker struct {
	table *Table
	desc  *prometheus.Desc

	mu     sync.Mutex
	byFlow map[string]float64
	input  uint64
	output uint64
}

// NewTracker creates a tracker priced by table.
func NewTracker(table *Table) *Tracker {
	return &Tracker{
		table: table,
		desc: prometheus.NewDesc("quill_flow_cost_usd_total",
			"Estimated spend on completions, by flow.", []string{"flow"}, nil),
		byFlow: make(map[string]float64),
	}
}

// Record implements analytics.Recorder.
func (t *Tracker) Record(_ context.Context, r analytics.RunRecord) error {
	usd := t.table.Estimate(r.Model, core.Usage{PromptTokens: r.InputTokens, CompletionTokens: r.OutputTokens})
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input += uint64(r.InputTokens)
	t.output += uint64(r.OutputTokens)
	t.byFlow[r.Flow] += usd
	return nil
}

// TotalCostUSD returns the spend across every flow.
func (t *Tracker) TotalCostUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum float64
	for _, v := range t.byFlow {
		sum += v
	}
	return sum
}

// FlowCostUSD returns the spend of one flow.
func (t *Tracker) FlowCostUSD(flow string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byFlow[flow]
}

// Tokens returns total prompt and completion tokens recorded.
func (t *Tracker) Tokens() (input, output uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input, t.output
}

// Describe implements prometheus.Collector.
func (t *Tracker) Describe(ch chan<- *prometheus.Desc) {
	ch <- t.desc
}

// Collect implements prometheus.Collector.
func (t *Tracker) Collect(ch chan<- prometheus.Metric) {
	t.mu.Lock()
	flows := make([]string, 0, len(t.byFlow))
	for f := range t.byFlow {
		flows = append(flows, f)
	}
	sort.Strings(flows)
	values := make([]float64, len(flows))
	for i, f := range flows {
		values[i] = t.byFlow[f]
	}
	t.mu.Unlock()
	for i, f := range flows {
		ch <- prometheus.MustNewConstMetric(t.desc, prometheus.CounterValue, values[i], f)
	}
}
