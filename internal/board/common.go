package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marcus-ai/marcus/internal/store"
)

// httpClient is shared plumbing for the three adapters: a single
// net/http.Client, a JSON request/response helper that classifies status
// codes into the failure taxonomy, and a label->priority mapper that
// honors each adapter's own explicit table rather than the substring
// matching the original scripts used (spec.md §9 REDESIGN FLAGS).
type httpClient struct {
	base    string
	client  *http.Client
	headers map[string]string
}

func newHTTPClient(base string, headers map[string]string) *httpClient {
	return &httpClient{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		headers: headers,
	}
}

func (h *httpClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return &TransientError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{}
	case resp.StatusCode == http.StatusConflict:
		return &ConflictError{}
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return &PermissionDeniedError{Op: method + " " + path}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &TransientError{Cause: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return &MalformedResponseError{Raw: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &MalformedResponseError{Raw: string(data)}
		}
	}
	return nil
}

// mapPriority looks up each label in table (case-sensitive, adapter-local,
// explicit) and returns the first match; unmatched label sets fall back
// to MEDIUM, matching spec.md §4.1's "unknown -> MEDIUM" rule.
func mapPriority(labels []string, table map[string]store.Priority) store.Priority {
	for _, label := range labels {
		if p, ok := table[label]; ok {
			return p
		}
	}
	return store.PriorityMedium
}

func labelSet(labels []string) map[string]struct{} {
	out := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		out[l] = struct{}{}
	}
	return out
}
