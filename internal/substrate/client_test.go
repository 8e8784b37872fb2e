package substrate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockNodeServer эмулирует JSON-RPC ноды
func mockNodeServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}

		switch req.Method {
		case "system_chain":
			resp["result"] = "Development"
		case "system_name":
			resp["result"] = "Midnight Node"
		case "system_version":
			resp["result"] = "0.20.0"
		case "system_health":
			resp["result"] = map[string]interface{}{"peers": 3, "isSyncing": true, "shouldHavePeers": false}
		case "chain_getHeader":
			resp["result"] = map[string]interface{}{
				"number":         "0x1a",
				"parentHash":     "0xparent",
				"stateRoot":      "0xstate",
				"extrinsicsRoot": "0xext",
			}
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "Method not found"}
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClientStringMethods(t *testing.T) {
	srv := mockNodeServer()
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		call func(context.Context) (string, error)
		want string
	}{
		{"chain", c.Chain, "Development"},
		{"name", c.Name, "Midnight Node"},
		{"version", c.Version, "0.20.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestClientHealth(t *testing.T) {
	srv := mockNodeServer()
	defer srv.Close()

	h, err := NewClient(srv.URL, nil).Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Peers != 3 || !h.IsSyncing {
		t.Errorf("unexpected health: %+v", h)
	}
}

func TestClientBestBlockParsesHexNumber(t *testing.T) {
	srv := mockNodeServer()
	defer srv.Close()

	header, err := NewClient(srv.URL, nil).BestBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header.Number != 26 {
		t.Errorf("expected block 26, got %d", header.Number)
	}
	if header.ParentHash != "0xparent" {
		t.Errorf("expected parent hash, got %q", header.ParentHash)
	}
}

func TestClientRPCErrorAndNullResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, nil).Chain(context.Background()); err == nil {
		t.Error("expected error for null result")
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := mockNodeServer()
	url := srv.URL
	srv.Close()

	if _, err := NewClient(url, nil).Version(context.Background()); err == nil {
		t.Error("expected error for closed server")
	}
}
