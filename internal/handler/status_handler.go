package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/pelotonexport/internal/eventlog"
)

// ProgressSource は実行中の進捗スナップショットを提供する。eventlog.Trackerが実装する。
type ProgressSource interface {
	Snapshot() eventlog.Snapshot
}

// StatusHandler はステータスサーバーのハンドラー。
type StatusHandler struct {
	progress ProgressSource
}

// NewStatusHandler はStatusHandlerの新しいインスタンスを生成する。
func NewStatusHandler(progress ProgressSource) *StatusHandler {
	return &StatusHandler{progress: progress}
}

// Health はプロセスが応答可能であることを返す。
// GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status は現在のエクスポート進捗を返す。
// GET /status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.progress.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
