package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPRecorder sends run records to a remote analytics server.
type HTTPRecorder struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPRecorder creates a recorder posting to baseURL + "/record".
func NewHTTPRecorder(baseURL string, client *http.Client) *HTTPRecorder {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRecorder{BaseURL: strings.TrimSuffix(baseURL, "/"), HTTPClient: client}
}

// Record implements Recorder.
func (h *HTTPRecorder) Record(ctx context.Context, r RunRecord) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(r); err != nil {
		return fmt.Errorf("analytics encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/record", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("analytics record: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("analytics record: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
