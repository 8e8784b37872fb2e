package api

import "net/http"

// NewServer регистрирует маршруты панели
func NewServer(handlers *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handlers.Index)
	mux.HandleFunc("GET /ws", handlers.hub.ServeWS)

	mux.HandleFunc("GET /api/status", handlers.GetStatus)
	mux.HandleFunc("GET /api/history/export", handlers.ExportHistory)
	mux.HandleFunc("GET /api/history/{target}", handlers.GetProbeHistory)

	mux.HandleFunc("GET /api/recording", handlers.GetRecording)
	mux.HandleFunc("POST /api/recording/start", handlers.StartRecording)
	mux.HandleFunc("POST /api/recording/stop", handlers.StopRecording)

	return mux
}
