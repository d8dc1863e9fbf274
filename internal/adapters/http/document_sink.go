// Package http delivers session documents to a remote document store.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"

	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

const sessionsEndpoint = "/v1/sessions/"

// DocumentSink implements ports.SessionSink by PUTting the session document
// to ServiceURL/v1/sessions/{id}. The PUT is keyed by id so a replayed
// delivery overwrites rather than duplicates.
type DocumentSink struct {
	client     ports.HTTPClient
	serviceURL string
	authKey    string
	logger     ports.Logger
}

// NewDocumentSink creates a sink for serviceURL. authKey may be empty.
func NewDocumentSink(client ports.HTTPClient, serviceURL, authKey string, logger ports.Logger) *DocumentSink {
	return &DocumentSink{
		client:     client,
		serviceURL: serviceURL,
		authKey:    authKey,
		logger:     logger,
	}
}

// Persist uploads the session document.
func (s *DocumentSink) Persist(ctx context.Context, p *domain.SessionPayload) error {
	body, err := json.Marshal(p.Document())
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	endpoint := s.serviceURL + sessionsEndpoint + url.PathEscape(p.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.authKey)
	}
	req.Header.Set("X-Agent-Hostname", hostname())
	req.Header.Set("X-Agent-OSArch", runtime.GOOS+"/"+runtime.GOARCH)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	s.logger.Debug("session document uploaded",
		ports.String("session", p.ID),
		ports.Int("bytes", len(body)),
	)
	return nil
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
