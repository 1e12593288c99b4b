package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// StreamRegistrations pushes registration status changes of one event as
// server-sent events until the client disconnects.
func (h *Handler) StreamRegistrations(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	event, err := h.Catalog.GetByCode(r.Context(), code)
	if err != nil {
		h.writeError(w, r, "StreamRegistrations", err)
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})
	setupSSEHeaders(w)
	ctx := r.Context()
	updates := h.Feed.Subscribe(ctx, event.ID)

	fmt.Fprintf(w, "event: connected\ndata: {\"event_code\":%q}\n\n", event.Code)
	if err := rc.Flush(); err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Streaming unsupported: %v", err))
		return
	}
	h.Logger.Info("SSE", fmt.Sprintf("Client watching registrations of %s", event.Code))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize registration event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: registration\ndata: %s\n\n", data)
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client stopped watching %s", event.Code))
			return
		}
	}
}
