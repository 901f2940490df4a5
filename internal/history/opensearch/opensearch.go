// Package opensearch implements a history.Sink that indexes lifecycle
// events over plain HTTP into OpenSearch (or anything
// Elasticsearch-compatible). Documents land in monthly indices derived
// from each event's own timestamp ("lifecycle-events-2024.01"), the
// usual pattern for time-series audit data: retention becomes dropping
// whole indices instead of running delete-by-query.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fbaster/mcsupervisor/internal/history"
)

const requestTimeout = 5 * time.Second

// Sink sends lifecycle events to OpenSearch via HTTP.
type Sink struct {
	client    *http.Client
	baseURL   string
	indexBase string
}

// New builds a Sink posting into indices named indexBase-YYYY.MM under
// baseURL.
func New(baseURL, indexBase string) *Sink {
	return &Sink{
		client:    &http.Client{Timeout: requestTimeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		indexBase: indexBase,
	}
}

// indexFor partitions by the event's occurrence month, not the wall
// clock, so replayed or delayed events still land in the right index.
func (s *Sink) indexFor(at time.Time) string {
	return fmt.Sprintf("%s-%s", s.indexBase, at.UTC().Format("2006.01"))
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("opensearch history: encode event: %w", err)
	}

	u := s.baseURL + "/" + s.indexFor(e.OccurredAt) + "/_doc"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("opensearch history: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("opensearch history: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("opensearch history: index into %s: %s",
			s.indexFor(e.OccurredAt), errorReason(resp))
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close exists to satisfy history.Sink; the HTTP client holds no
// resources worth releasing explicitly.
func (s *Sink) Close() error { return nil }

// errorReason digs the human-readable reason out of an OpenSearch error
// body, falling back to the bare HTTP status.
func errorReason(resp *http.Response) string {
	var doc struct {
		Error struct {
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&doc); err == nil && doc.Error.Reason != "" {
		return fmt.Sprintf("%s (HTTP %d)", doc.Error.Reason, resp.StatusCode)
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
