package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Pruner is implemented by stores that can drop old records.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Server exposes a Store over HTTP.
//
//	POST   /record       store one RunRecord
//	GET    /aggregates   flow, model, group_by, from, to, limit
//	DELETE /records      before (RFC 3339); only for stores that implement Pruner
//	GET    /health
type Server struct {
	store  Store
	logger *zap.Logger
	limit  int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger used for store failures.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultLimit sets the aggregate limit used when a request gives none.
func WithDefaultLimit(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.limit = n
		}
	}
}

// NewServer creates a server backed by store.
func NewServer(store Store, opts ...ServerOption) *Server {
	s := &Server{store: store, logger: zap.NewNop(), limit: 100}
	for _, o := range opts {
		o(s)
	}
	return s
}

type aggregateResponse struct {
	Aggregates []Aggregate `json:"aggregates"`
}

type pruneResponse struct {
	Removed int64 `json:"removed"`
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /record", s.handleRecord)
	mux.HandleFunc("GET /aggregates", s.handleAggregates)
	mux.HandleFunc("DELETE /records", s.handlePrune)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var rec RunRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&rec); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if rec.Flow == "" || rec.Stage == "" {
		http.Error(w, "flow and stage required", http.StatusBadRequest)
		return
	}
	if err := s.store.Record(r.Context(), rec); err != nil {
		s.fail(w, "record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	agg, err := s.store.Query(r.Context(), q)
	if err != nil {
		s.fail(w, "query", err)
		return
	}
	if agg == nil {
		agg = []Aggregate{}
	}
	writeJSON(w, aggregateResponse{Aggregates: agg})
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	p, ok := s.store.(Pruner)
	if !ok {
		http.Error(w, "store does not support pruning", http.StatusNotImplemented)
		return
	}
	before, err := parseTime(r.URL.Query().Get("before"))
	if err != nil || before.IsZero() {
		http.Error(w, "before must be an RFC 3339 time", http.StatusBadRequest)
		return
	}
	n, err := p.Prune(r.Context(), before)
	if err != nil {
		s.fail(w, "prune", err)
		return
	}
	s.logger.Info("pruned run records", zap.Time("before", before), zap.Int64("removed", n))
	writeJSON(w, pruneResponse{Removed: n})
}

func (s *Server) parseQuery(r *http.Request) (Query, error) {
	params := r.URL.Query()
	q := Query{
		Flow:    params.Get("flow"),
		Model:   params.Get("model"),
		GroupBy: params.Get("group_by"),
		Limit:   s.limit,
	}
	var err error
	if q.From, err = parseTime(params.Get("from")); err != nil {
		return q, errors.New("invalid from: " + err.Error())
	}
	if q.To, err = parseTime(params.Get("to")); err != nil {
		return q, errors.New("invalid to: " + err.Error())
	}
	if n, err := strconv.Atoi(params.Get("limit")); err == nil && n > 0 {
		q.Limit = n
	}
	return q, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Error("analytics store failed", zap.String("op", op), zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
