package api

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pv/devnet-panel/internal/collector"
	"github.com/pv/devnet-panel/internal/health"
	"github.com/pv/devnet-panel/internal/recording"
)

//go:embed templates/index.html
var templates embed.FS

var indexTmpl = template.Must(template.ParseFS(templates, "templates/index.html"))

// Recorder запись проб (*recording.Manager); может отсутствовать
type Recorder interface {
	Start() error
	Stop() error
	IsRecording() bool
	GetStats() (recording.Stats, error)
	GetLatest(target string, count int) ([]recording.Record, error)
	GetHistory(filter recording.Filter) ([]recording.Record, error)
}

type Handlers struct {
	hub      *Hub
	recorder Recorder
}

func NewHandlers(hub *Hub, recorder Recorder) *Handlers {
	return &Handlers{
		hub:      hub,
		recorder: recorder,
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// WebSocketURL адрес канала /ws для страницы, открытой по запросу r
func WebSocketURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/ws"
}

// Index отдаёт страницу с вычисленным адресом канала
// GET /
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, struct{ WSURL string }{WebSocketURL(r)}); err != nil {
		h.hub.logger.Warn("Render index failed", "error", err)
	}
}

// GetStatus возвращает сводку хаба и записи
// GET /api/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		StatusInfo
		Recording bool `json:"recording"`
	}{StatusInfo: h.hub.Status()}
	if h.recorder != nil {
		resp.Recording = h.recorder.IsRecording()
	}
	h.writeJSON(w, resp)
}

func validTarget(name string) bool {
	for _, t := range health.Targets {
		if string(t) == name {
			return true
		}
	}
	return false
}

// GetProbeHistory возвращает последние записанные пробы цели
// GET /api/history/{target}?count=30
func (h *Handlers) GetProbeHistory(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		h.writeError(w, http.StatusServiceUnavailable, "recording is not configured")
		return
	}

	target := r.PathValue("target")
	if !validTarget(target) {
		h.writeError(w, http.StatusBadRequest, "unknown target: "+target)
		return
	}

	count := collector.HistoryCapacity
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		if c, err := strconv.Atoi(countStr); err == nil && c > 0 {
			count = c
		}
	}

	records, err := h.recorder.GetLatest(target, count)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"target":  target,
		"records": records,
	})
}

// ExportHistory выгружает записанные пробы
// GET /api/history/export?format=csv|json&from=...&to=...&target=...
func (h *Handlers) ExportHistory(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		h.writeError(w, http.StatusServiceUnavailable, "recording is not configured")
		return
	}

	q := r.URL.Query()
	filter := recording.Filter{Target: q.Get("target")}

	if fromStr := q.Get("from"); fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
			return
		}
		filter.From = &t
	}
	if toStr := q.Get("to"); toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
			return
		}
		filter.To = &t
	}

	format := q.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		h.writeError(w, http.StatusBadRequest, "unsupported format: "+format)
		return
	}

	records, err := h.recorder.GetHistory(filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := "probes-" + time.Now().UTC().Format("20060102-150405") + "." + format
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		err = recording.ExportCSV(w, records)
	} else {
		w.Header().Set("Content-Type", "application/json")
		err = recording.ExportJSON(w, records)
	}
	if err != nil {
		h.hub.logger.Warn("Export failed", "format", format, "error", err)
	}
}

// GetRecording возвращает статистику записи
// GET /api/recording
func (h *Handlers) GetRecording(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		h.writeJSON(w, recording.Stats{})
		return
	}

	stats, err := h.recorder.GetStats()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, stats)
}

// StartRecording включает запись проб
// POST /api/recording/start
func (h *Handlers) StartRecording(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		h.writeError(w, http.StatusServiceUnavailable, "recording is not configured")
		return
	}
	if err := h.recorder.Start(); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, map[string]bool{"recording": true})
}

// StopRecording выключает запись проб
// POST /api/recording/stop
func (h *Handlers) StopRecording(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		h.writeError(w, http.StatusServiceUnavailable, "recording is not configured")
		return
	}
	if err := h.recorder.Stop(); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, map[string]bool{"recording": false})
}
