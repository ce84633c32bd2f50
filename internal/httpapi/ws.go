package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriter adapts a websocket connection to the orchestrator's io.Writer
// sink, one binary frame per write.
type wsWriter struct {
	conn *websocket.Conn
}

func (w *wsWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

type wsDone struct {
	Done          bool  `json:"done"`
	Chunks        int   `json:"chunks"`
	ChunksSkipped int   `json:"chunks_skipped"`
	Bytes         int64 `json:"bytes"`
}

// handleWS serves the websocket synthesis variant: the client sends one
// JSON request, the server answers with binary WAV frames (header first)
// followed by a JSON completion message.
func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	var body ttsRequest
	if err := conn.ReadJSON(&body); err != nil {
		r.log.Warn("websocket request parse failed", slog.String("error", err.Error()))
		_ = conn.WriteJSON(map[string]string{"error": "invalid request"})
		return
	}

	oreq, err := r.toRequest(body)
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}

	if _, err := r.engine.EnsureReady(req.Context()); err != nil {
		r.log.Error("synthesis model unavailable",
			slog.String("request_id", oreq.ID), slog.String("error", err.Error()))
		_ = conn.WriteJSON(map[string]string{"error": "synthesis model unavailable"})
		return
	}

	stats, err := r.orch.Stream(req.Context(), &wsWriter{conn: conn}, oreq)
	if err != nil {
		r.log.Warn("websocket stream ended early",
			slog.String("request_id", oreq.ID), slog.String("error", err.Error()))
	}
	r.logFinished("ws", oreq, stats)
	r.record(req.Context(), oreq.ID, "ws", oreq.Voice, stats)

	_ = conn.WriteJSON(wsDone{
		Done:          true,
		Chunks:        stats.Chunks,
		ChunksSkipped: stats.ChunksSkipped,
		Bytes:         stats.BytesEmitted,
	})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
