package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/scriptd/scriptd/internal/engine"
	"github.com/scriptd/scriptd/internal/requestctx"
)

const (
	streamPollInterval = 250 * time.Millisecond
	streamWriteTimeout = 10 * time.Second
)

// StreamMessage is one frame of the execution log stream. Terminal frames
// carry the final status and no entry.
type StreamMessage struct {
	Type   string           `json:"type"` // "log" or "status"
	Entry  *engine.LogEntry `json:"entry,omitempty"`
	Status engine.Status    `json:"status,omitempty"`
}

// StreamExecution tails an execution's log over a WebSocket. New entries are
// pushed as they appear; the stream ends with a status frame once the
// execution reaches a terminal state.
func (h *Handlers) StreamExecution(w http.ResponseWriter, r *http.Request) {
	owner := requestctx.OwnerID(r.Context())
	id := r.PathValue("id")

	// Reject unknown executions before upgrading.
	if _, err := h.manager.Status(r.Context(), owner, id); err != nil {
		h.writeEngineError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to accept WebSocket connection")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream ended")

	ctx := r.Context()
	sent := 0

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		exec, err := h.manager.Status(ctx, owner, id)
		if err != nil {
			return
		}

		for ; sent < len(exec.Logs); sent++ {
			entry := exec.Logs[sent]
			if err := writeStreamMessage(ctx, conn, StreamMessage{Type: "log", Entry: &entry}); err != nil {
				return
			}
		}

		if exec.Status.Terminal() {
			_ = writeStreamMessage(ctx, conn, StreamMessage{Type: "status", Status: exec.Status})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeStreamMessage(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, data)
}
