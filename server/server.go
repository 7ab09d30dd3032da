// Package server exposes the flow catalog and executor over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/cost"
	"github.com/klejdi94/quill/executor"
	"github.com/klejdi94/quill/registry"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server routes HTTP requests to the catalog and executor.
type Server struct {
	catalog  *registry.Catalog
	exec     *executor.Executor
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	pricing  *cost.Table
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer serves metrics from g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithPricing adds an estimated cost_usd to run responses.
func WithPricing(t *cost.Table) Option {
	return func(s *Server) {
		s.pricing = t
	}
}

// New creates a server.
func New(catalog *registry.Catalog, exec *executor.Executor, opts ...Option) *Server {
	s := &Server{catalog: catalog, exec: exec, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/flows", s.handleList)
	mux.HandleFunc("GET /v1/flows/search", s.handleSearch)
	mux.HandleFunc("GET /v1/flows/{name}", s.handleGet)
	mux.HandleFunc("POST /v1/flows/{name}/run", s.handleRun)
	mux.HandleFunc("POST /v1/flows/{name}/render", s.handleRender)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// flowSummary is the catalog listing entry.
type flowSummary struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

func summarize(flows []*core.Flow) []flowSummary {
	out := make([]flowSummary, 0, len(flows))
	for _, f := range flows {
		out = append(out, flowSummary{Name: f.Name, Title: f.Title, Description: f.Description, Category: f.Category})
	}
	return out
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var list []*core.Flow
	if category := r.URL.Query().Get("category"); category != "" {
		list = s.catalog.Category(category)
	} else {
		list = s.catalog.List()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flows": summarize(list)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	hits, err := s.catalog.Search(r.URL.Query().Get("q"), limit)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errorBody{Kind: "internal", Message: core.UserMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flows": summarize(hits)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, ok := s.catalog.Get(name)
	if !ok {
		s.writeRunError(w, &core.UnknownFlowError{Name: name})
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// runResponse is the body of a successful run.
type runResponse struct {
	RequestID string               `json:"request_id"`
	Flow      string               `json:"flow"`
	Model     string               `json:"model"`
	Output    core.ValidatedOutput `json:"output"`
	Usage     core.Usage           `json:"usage"`
	LatencyMs int64                `json:"latency_ms"`
	CostUSD   float64              `json:"cost_usd,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeInput(w, r)
	if !ok {
		return
	}
	var opts []executor.RunOption
	if id := r.Header.Get("X-Request-ID"); id != "" {
		opts = append(opts, executor.WithRequestID(id))
	}
	if model := r.URL.Query().Get("model"); model != "" {
		opts = append(opts, executor.WithModel(model))
	}
	res, err := s.exec.Run(r.Context(), r.PathValue("name"), raw, opts...)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	resp := runResponse{
		RequestID: res.RequestID,
		Flow:      res.Flow,
		Model:     res.Model,
		Output:    res.Output,
		Usage:     res.Usage,
		LatencyMs: res.Latency.Milliseconds(),
	}
	if s.pricing != nil {
		resp.CostUSD = s.pricing.Estimate(res.Model, res.Usage)
	}
	w.Header().Set("X-Request-ID", res.RequestID)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeInput(w, r)
	if !ok {
		return
	}
	rendered, err := s.exec.Render(r.Context(), r.PathValue("name"), raw)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rendered)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"flows":  s.catalog.Len(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeInput reads the raw input object. Numbers stay json.Number so the
// validator sees exactly what the client sent.
func decodeInput(w http.ResponseWriter, r *http.Request) (core.RawInput, bool) {
	raw := core.RawInput{}
	if r.ContentLength == 0 {
		return raw, true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "bad_request", Message: "Request body must be a JSON object."})
		return nil, false
	}
	return raw, true
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Kind      string            `json:"kind"`
	Message   string            `json:"message"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	body := errorBody{Kind: executor.ErrorKind(err), Message: core.UserMessage(err)}
	var rerr *core.RequestError
	if errors.As(err, &rerr) {
		body.RequestID = rerr.RequestID
	}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		body.Fields = make(map[string]string, len(verr.Fields))
		for _, fe := range verr.Fields {
			body.Fields[fe.Field] = fe.Message
		}
	}
	status := StatusFor(err)
	if status >= 500 {
		s.logger.Warn("run failed", zap.Error(err), zap.Int("status", status))
	}
	writeError(w, status, body)
}

// StatusFor maps a run error to an HTTP status code.
func StatusFor(err error) int {
	var perr *core.ProviderError
	switch {
	case errors.Is(err, core.ErrFlowNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.As(err, &perr):
		switch perr.Kind {
		case core.ProviderTimeout:
			return http.StatusGatewayTimeout
		case core.ProviderRateLimited:
			return http.StatusTooManyRequests
		default:
			return http.StatusBadGateway
		}
	case errors.Is(err, core.ErrSchemaMismatch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, map[string]interface{}{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
