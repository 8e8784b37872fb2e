package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pv/devnet-panel/internal/transport"
)

// Client talks to the external wallet service. All key handling happens
// on the service side; this client only moves JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a wallet service client; httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = transport.NewClient(transport.DefaultTimeout)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Balances returns the master wallet balances (GET /balances).
func (c *Client) Balances(ctx context.Context) (Balances, error) {
	var b Balances
	err := c.do(ctx, http.MethodGet, "/balances", nil, &b)
	return b, err
}

// Address returns the master wallet address (GET /address).
func (c *Client) Address(ctx context.Context) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodGet, "/address", nil, &resp); err != nil {
		return "", err
	}
	if resp.Address == "" {
		return "", fmt.Errorf("wallet service returned empty address")
	}
	return resp.Address, nil
}

// DeriveAddress derives the first external address of a mnemonic
// (POST /derive).
func (c *Client) DeriveAddress(ctx context.Context, mnemonic, networkID string) (string, error) {
	req := struct {
		Mnemonic  string `json:"mnemonic"`
		NetworkID string `json:"networkId"`
	}{mnemonic, networkID}

	var resp struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodPost, "/derive", req, &resp); err != nil {
		return "", err
	}
	if resp.Address == "" {
		return "", fmt.Errorf("wallet service returned empty address")
	}
	return resp.Address, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	url := c.baseURL + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request %s: %w", url, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s failed: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", path, e.Error)
		}
		return fmt.Errorf("%s: status %d (%s)", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
