package substrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pv/devnet-panel/internal/transport"
)

// SystemHealth ответ system_health
type SystemHealth struct {
	Peers           int  `json:"peers"`
	IsSyncing       bool `json:"isSyncing"`
	ShouldHavePeers bool `json:"shouldHavePeers"`
}

// BlockHeader заголовок блока с уже разобранным номером
type BlockHeader struct {
	Number         int64
	ParentHash     string
	StateRoot      string
	ExtrinsicsRoot string
}

type rawHeader struct {
	Number         string `json:"number"`
	ParentHash     string `json:"parentHash"`
	StateRoot      string `json:"stateRoot"`
	ExtrinsicsRoot string `json:"extrinsicsRoot"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Client JSON-RPC клиент ноды
type Client struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient создает клиента ноды; httpClient может быть nil
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = transport.NewClient(transport.DefaultTimeout)
	}
	return &Client{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: httpClient,
	}
}

// Chain возвращает имя цепочки (system_chain)
func (c *Client) Chain(ctx context.Context) (string, error) {
	var s string
	err := c.call(ctx, "system_chain", &s)
	return s, err
}

// Name возвращает имя реализации ноды (system_name)
func (c *Client) Name(ctx context.Context) (string, error) {
	var s string
	err := c.call(ctx, "system_name", &s)
	return s, err
}

// Version возвращает версию ноды (system_version)
func (c *Client) Version(ctx context.Context) (string, error) {
	var s string
	err := c.call(ctx, "system_version", &s)
	return s, err
}

// Health возвращает состояние пиров и синхронизации (system_health)
func (c *Client) Health(ctx context.Context) (SystemHealth, error) {
	var h SystemHealth
	err := c.call(ctx, "system_health", &h)
	return h, err
}

// BestBlock возвращает заголовок лучшего блока (chain_getHeader)
func (c *Client) BestBlock(ctx context.Context) (BlockHeader, error) {
	var raw rawHeader
	if err := c.call(ctx, "chain_getHeader", &raw); err != nil {
		return BlockHeader{}, err
	}

	// Номер блока приходит в hex: "0x1a2b"
	number, err := strconv.ParseInt(strings.TrimPrefix(raw.Number, "0x"), 16, 64)
	if err != nil {
		return BlockHeader{}, fmt.Errorf("parse block number %q: %w", raw.Number, err)
	}

	return BlockHeader{
		Number:         number,
		ParentHash:     raw.ParentHash,
		StateRoot:      raw.StateRoot,
		ExtrinsicsRoot: raw.ExtrinsicsRoot,
	}, nil
}

func (c *Client) call(ctx context.Context, method string, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  []any{},
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return fmt.Errorf("%s: empty result", method)
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}
