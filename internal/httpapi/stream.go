package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ndjobi.org/internal/events"
	"ndjobi.org/internal/obs"
)

const (
	streamBuffer    = 64
	streamHeartbeat = 15 * time.Second
)

// Realtime streams the simulator's events as Server-Sent Events.
func (a *API) Realtime(w http.ResponseWriter, r *http.Request) {
	if a.simulator == nil {
		writeError(w, r, http.StatusServiceUnavailable, "realtime disabled")
		return
	}
	a.serveEvents(w, r, a.simulator.Bus())
}

// StoreEvents streams mutations of the mock platform store.
func (a *API) StoreEvents(w http.ResponseWriter, r *http.Request) {
	a.serveEvents(w, r, a.platform.Bus())
}

func (a *API) serveEvents(w http.ResponseWriter, r *http.Request, bus *events.Bus) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	filter, err := parseTypeFilter(r.URL.Query().Get("types"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := bus.Channel(ctx, events.Wildcard, streamBuffer)
	obs.StreamClients.WithLabelValues(bus.Name()).Inc()
	defer obs.StreamClients.WithLabelValues(bus.Name()).Dec()

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if filter != nil && !filter[evt.Type] {
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				obs.Warn("stream encode failed", map[string]any{"bus": bus.Name(), "type": string(evt.Type), "error": err.Error()})
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseTypeFilter(raw string) (map[events.Type]bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	filter := make(map[events.Type]bool)
	for _, part := range strings.Split(raw, ",") {
		t, ok := events.ParseType(strings.TrimSpace(part))
		if !ok {
			return nil, fmt.Errorf("unknown event type %q", part)
		}
		filter[t] = true
	}
	return filter, nil
}

func (a *API) handleRealtimeConnect(w http.ResponseWriter, r *http.Request) {
	a.toggleRealtime(w, r, true)
}

func (a *API) handleRealtimeDisconnect(w http.ResponseWriter, r *http.Request) {
	a.toggleRealtime(w, r, false)
}

func (a *API) toggleRealtime(w http.ResponseWriter, r *http.Request, connect bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.simulator == nil {
		writeError(w, r, http.StatusServiceUnavailable, "realtime disabled")
		return
	}
	event := "realtime.disconnected"
	if connect {
		a.simulator.Start()
		event = "realtime.connected"
	} else {
		a.simulator.Stop()
	}
	a.auditEvent(r.Context(), event, nil)
	writeJSON(w, http.StatusOK, map[string]any{"running": a.simulator.Running()})
}
