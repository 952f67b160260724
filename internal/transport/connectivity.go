package transport

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const healthPath = "/health"

// HealthCheck reports the remote as reachable when GET /health answers 2xx
// within the timeout.
type HealthCheck struct {
	url    string
	client *http.Client
}

func NewHealthCheck(baseURL string, timeout time.Duration) *HealthCheck {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HealthCheck{
		url:    strings.TrimRight(baseURL, "/") + healthPath,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HealthCheck) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Always is a Connectivity that never reports offline.
type Always struct{}

func (Always) Online(context.Context) bool { return true }
