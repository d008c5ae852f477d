package wallet_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ticket-wallet/internal/auth"
)

// StreamReminders pushes the user's reminders as server-sent events while
// the connection stays open.
func (h *Handler) StreamReminders(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.Emitter == nil {
		http.Error(w, "reminder stream unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h.clearWriteDeadline(w)

	ctx := r.Context()
	events := h.Emitter.Subscribe(ctx, user.ID)

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()
	h.Logger.Debug("SSE", fmt.Sprintf("Client connected to reminders of %s", user.ID))

	for {
		select {
		case n, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to encode reminder: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: reminder\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from reminders of %s", user.ID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// clearWriteDeadline lifts the server's write timeout for responses that
// outlive it.
func (h *Handler) clearWriteDeadline(w http.ResponseWriter) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.Logger.Warn("API", fmt.Sprintf("Failed to clear write deadline: %v", err))
	}
}
