package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

const defaultActivityLimit = 50

// ListActivity handles GET /api/activity?n=
func (h *Handlers) ListActivity(w http.ResponseWriter, r *http.Request) {
	n := defaultActivityLimit
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	respondJSON(w, http.StatusOK, h.Activity.Recent(n))
}

// StreamActivity handles GET /api/activity/stream as server-sent events.
// Recent history is replayed first, then live entries follow.
func (h *Handlers) StreamActivity(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before replaying so nothing falls between the two.
	ch := h.Activity.Subscribe()
	defer h.Activity.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var last uint64
	for _, entry := range h.Activity.Recent(defaultActivityLimit) {
		data, _ := json.Marshal(entry)
		fmt.Fprintf(w, "id: %d\ndata: %s\n\n", entry.Seq, data)
		last = entry.Seq
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if entry.Seq <= last {
				continue
			}
			data, _ := json.Marshal(entry)
			fmt.Fprintf(w, "id: %d\ndata: %s\n\n", entry.Seq, data)
			flusher.Flush()
		}
	}
}
