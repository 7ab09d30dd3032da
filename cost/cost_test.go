package cost

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klejdi94/quill/analytics"
	"github.com/klejdi94/quill/core"
)

func TestTable_Lookup(t *testing.T) {
	tbl := DefaultTable()

	p, ok := tbl.Lookup("gpt-4o-mini-2024-07-18")
	require.True(t, ok)
	assert.Equal(t, 0.00015, p.InputPer1K)

	p, ok = tbl.Lookup("gpt-4o-2024-08-06")
	require.True(t, ok)
	assert.Equal(t, 0.0025, p.InputPer1K)

	_, ok = tbl.Lookup("unknown-model")
	assert.False(t, ok)
}

func TestTable_Estimate(t *testing.T) {
	tbl := NewTable()
	tbl.Set("m", Price{InputPer1K: 0.001, OutputPer1K: 0.002})
	assert.InDelta(t, 0.004, tbl.Estimate("m", core.Usage{PromptTokens: 2000, CompletionTokens: 1000}), 1e-12)
	assert.Zero(t, tbl.Estimate("other", core.Usage{PromptTokens: 2000}))
}

func TestTracker(t *testing.T) {
	tbl := NewTable()
	tbl.Set("m", Price{InputPer1K: 0.5, OutputPer1K: 1})
	tr := NewTracker(tbl)
	ctx := context.Background()

	var rec analytics.Recorder = tr
	require.NoError(t, rec.Record(ctx, analytics.RunRecord{Flow: "slogan", Model: "m", InputTokens: 1000, OutputTokens: 500}))
	require.NoError(t, rec.Record(ctx, analytics.RunRecord{Flow: "slogan", Model: "m", InputTokens: 1000}))
	require.NoError(t, rec.Record(ctx, analytics.RunRecord{Flow: "blog-post", Model: "m", OutputTokens: 1000}))
	require.NoError(t, rec.Record(ctx, analytics.RunRecord{Flow: "blog-post", Success: false}))

	assert.Equal(t, 1.5, tr.FlowCostUSD("slogan"))
	assert.Equal(t, 1.0, tr.FlowCostUSD("blog-post"))
	assert.Equal(t, 2.5, tr.TotalCostUSD())
	in, out := tr.Tokens()
	assert.Equal(t, uint64(2000), in)
	assert.Equal(t, uint64(1500), out)

	expected := `
# HELP quill_flow_cost_usd_total Estimated spend on completions, by flow.
# TYPE quill_flow_cost_usd_total counter
quill_flow_cost_usd_total{flow="blog-post"} 1
quill_flow_cost_usd_total{flow="slogan"} 1.5
`
	assert.NoError(t, testutil.CollectAndCompare(tr, strings.NewReader(expected)))
}
