package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRecorder(t *testing.T) {
	var got RunRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/record", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := NewHTTPRecorder(srv.URL+"/", nil)
	require.NoError(t, rec.Record(context.Background(), RunRecord{
		RequestID: "req-1", Flow: "topic-hashtags", Stage: "done", Success: true, LatencyMs: 40, At: at,
	}))
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "topic-hashtags", got.Flow)
	assert.True(t, got.At.Equal(at))
}

func TestHTTPRecorder_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "store down", http.StatusInternalServerError)
	}))
	rec := NewHTTPRecorder(srv.URL, srv.Client())
	err := rec.Record(context.Background(), RunRecord{Flow: "slogan", Stage: "done"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500: store down")

	srv.Close()
	err = rec.Record(context.Background(), RunRecord{Flow: "slogan", Stage: "done"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analytics record")
}
