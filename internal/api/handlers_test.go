package api

import (
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pv/devnet-panel/internal/health"
	"github.com/pv/devnet-panel/internal/recording"
)

func ptr(v int64) *int64 { return &v }

func newTestServer(t *testing.T) (*hubFixture, *recording.Manager, http.Handler) {
	t.Helper()

	f := newHubFixture(t)
	rec := recording.NewManager(recording.NewMemoryBackend(), 1000, nil)
	return f, rec, NewServer(NewHandlers(f.hub, rec))
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		name   string
		host   string
		tls    bool
		header string
		want   string
	}{
		{"plain", "localhost:8000", false, "", "ws://localhost:8000/ws"},
		{"tls", "panel.local", true, "", "wss://panel.local/ws"},
		{"forwarded https", "panel.example.org", false, "https", "wss://panel.example.org/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tt.host
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			if tt.header != "" {
				req.Header.Set("X-Forwarded-Proto", tt.header)
			}
			if got := WebSocketURL(req); got != tt.want {
				t.Errorf("WebSocketURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIndexEmbedsWebSocketURL(t *testing.T) {
	_, _, server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "127.0.0.1:9000"
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %s", ct)
	}
	// html/template экранирует "/" внутри JS-строки
	body := strings.ReplaceAll(w.Body.String(), `\/`, `/`)
	if !strings.Contains(body, "ws://127.0.0.1:9000/ws") {
		t.Errorf("page does not embed ws url:\n%s", body)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	_, _, server := newTestServer(t)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetStatus(t *testing.T) {
	f, _, server := newTestServer(t)
	f.hub.AddClient(nil)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Clients       int                      `json:"clients"`
		NetworkStatus string                   `json:"networkStatus"`
		WalletSync    string                   `json:"walletSyncStatus"`
		Polling       map[string]PollingStatus `json:"polling"`
		Recording     bool                     `json:"recording"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Clients != 1 {
		t.Errorf("expected 1 client, got %d", resp.Clients)
	}
	if resp.NetworkStatus != "stopped" {
		t.Errorf("expected stopped, got %s", resp.NetworkStatus)
	}
	if resp.WalletSync != "idle" {
		t.Errorf("expected idle, got %s", resp.WalletSync)
	}
	if len(resp.Polling) != 6 || resp.Polling["node"].IntervalMs != 3000 || !resp.Polling["node"].Enabled {
		t.Errorf("unexpected polling: %+v", resp.Polling)
	}
	if resp.Recording {
		t.Error("recording should be off")
	}
}

func TestRecordingEndpoints(t *testing.T) {
	_, rec, server := newTestServer(t)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/recording/start", nil))
	if w.Code != http.StatusOK || !rec.IsRecording() {
		t.Fatalf("start failed: %d %s", w.Code, w.Body.String())
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec.RecordReport(at.Add(time.Duration(i)*time.Second), health.Report{
			Node:        health.Result{Healthy: true, ResponseTimeMs: ptr(int64(10 + i))},
			Indexer:     health.Result{Healthy: false, Error: "refused"},
			ProofServer: health.Result{Healthy: true, ResponseTimeMs: ptr(5)},
		})
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/recording", nil))
	var stats recording.Stats
	json.NewDecoder(w.Body).Decode(&stats)
	if stats.RecordCount != 9 || !stats.IsRecording {
		t.Errorf("unexpected stats: %+v", stats)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/node?count=2", nil))
	var hist struct {
		Target  string             `json:"target"`
		Records []recording.Record `json:"records"`
	}
	if err := json.NewDecoder(w.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if hist.Target != "node" || len(hist.Records) != 2 || *hist.Records[1].ResponseTimeMs != 12 {
		t.Errorf("unexpected history: %+v", hist)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/mempool", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown target: expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	url := "/api/history/export?format=csv&target=indexer&from=2026-01-02T03:04:06Z"
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".csv") {
		t.Errorf("missing attachment header: %v", w.Header())
	}
	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 || rows[1][1] != "indexer" || rows[1][4] != "refused" {
		t.Errorf("unexpected csv rows: %v", rows)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/export?format=xml", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad format: expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/export?from=yesterday", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad from: expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/recording/stop", nil))
	if w.Code != http.StatusOK || rec.IsRecording() {
		t.Errorf("stop failed: %d", w.Code)
	}
}

func TestHistoryWithoutRecorder(t *testing.T) {
	f := newHubFixture(t)
	server := NewServer(NewHandlers(f.hub, nil))

	for _, path := range []string{"/api/history/node", "/api/history/export"} {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/recording", nil))
	if w.Code != http.StatusOK {
		t.Errorf("recording stats without recorder: %d", w.Code)
	}
}
