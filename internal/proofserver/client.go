package proofserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pv/devnet-panel/internal/transport"
)

// Health ответ /health
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Readiness ответ /ready; status "ok" или "busy"
type Readiness struct {
	Status         string `json:"status"`
	JobsProcessing int    `json:"jobsProcessing"`
	JobsPending    int    `json:"jobsPending"`
	JobCapacity    int    `json:"jobCapacity"`
	Timestamp      string `json:"timestamp"`
}

// Ready сообщает, принимает ли сервер доказательств задания
func (r Readiness) Ready() bool {
	return r.Status == "ok"
}

// Client клиент HTTP API сервера доказательств
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создает клиента; httpClient может быть nil
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = transport.NewClient(transport.DefaultTimeout)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Version возвращает версию сервера (/version, text/plain)
func (c *Client) Version(ctx context.Context) (string, error) {
	body, status, err := c.doGet(ctx, "/version")
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("/version: status %d", status)
	}
	return strings.TrimSpace(string(body)), nil
}

// Ready возвращает состояние очереди. /ready отдает JSON и при 503.
func (c *Client) Ready(ctx context.Context) (Readiness, error) {
	var r Readiness
	body, _, err := c.doGet(ctx, "/ready")
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return r, fmt.Errorf("unmarshal /ready: %w", err)
	}
	return r, nil
}

// ProofVersions возвращает поддерживаемые версии доказательств
func (c *Client) ProofVersions(ctx context.Context) ([]string, error) {
	body, status, err := c.doGet(ctx, "/proof-versions")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("/proof-versions: status %d", status)
	}

	var versions []string
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, fmt.Errorf("unmarshal /proof-versions: %w", err)
	}
	return versions, nil
}

// Health возвращает ответ /health
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	body, status, err := c.doGet(ctx, "/health")
	if err != nil {
		return h, err
	}
	if status != http.StatusOK {
		return h, fmt.Errorf("/health: status %d", status)
	}
	if err := json.Unmarshal(body, &h); err != nil {
		return h, fmt.Errorf("unmarshal /health: %w", err)
	}
	return h, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, int, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request %s: %w", url, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s failed: %w", url, err)
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response from %s failed: %w", url, readErr)
	}

	return body, resp.StatusCode, nil
}
