package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/pkg/response"
)

const (
	syncPath    = "/api/v1/history/sync"
	historyPath = "/api/v1/history"

	DefaultTimeout = 15 * time.Second
)

// ErrNetwork covers every failed exchange with the remote: unreachable host,
// non-2xx status, or an unreadable body.
var ErrNetwork = errors.New("network error")

// StatusError carries the HTTP status of a rejected request. It matches
// ErrNetwork with errors.Is.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote returned status %d", e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNetwork
}

// HTTPRemote talks to the history service over its JSON API.
type HTTPRemote struct {
	baseURL  string
	token    string
	deviceID string
	client   *http.Client
}

func NewHTTPRemote(baseURL, token, deviceID string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPRemote{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		deviceID: deviceID,
		client:   &http.Client{Timeout: timeout},
	}
}

// Sync pushes the client's changes and pulls the remote's in one exchange.
func (r *HTTPRemote) Sync(ctx context.Context, req *domain.SyncRequest) (*domain.SyncResponse, error) {
	var out domain.SyncResponse
	if err := r.do(ctx, http.MethodPost, syncPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshot fetches the full remote history.
func (r *HTTPRemote) Snapshot(ctx context.Context) ([]*domain.EmotionRecord, error) {
	var out []*domain.EmotionRecord
	if err := r.do(ctx, http.MethodGet, historyPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Append stores records without pulling. Rejected ids come back with their
// stored versions in ServerChanges.
func (r *HTTPRemote) Append(ctx context.Context, records []*domain.EmotionRecord) (*domain.SyncResponse, error) {
	var out domain.SyncResponse
	if err := r.do(ctx, http.MethodPost, historyPath, records, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.deviceID != "" {
		req.Header.Set("X-Device-ID", r.deviceID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	env, decodeErr := response.Decode(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			se.Message = env.Error
		}
		return se
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrNetwork, decodeErr)
	}
	if !env.Success {
		return &StatusError{StatusCode: resp.StatusCode, Message: env.Error}
	}

	if out == nil {
		return nil
	}
	if err := response.Unwrap(env, out); err != nil && !errors.Is(err, response.ErrEmptyData) {
		return fmt.Errorf("%w: failed to decode payload: %v", ErrNetwork, err)
	}
	return nil
}
