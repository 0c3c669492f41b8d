package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stonewallbooks/storefront/internal/storesync"
)

// Snapshotter provides the state a new client starts from.
type Snapshotter interface {
	Snapshot() storesync.State
}

// Handler serves GET /api/v1/store/stream. A client first receives the current store
// document, then every later one.
type Handler struct {
	manager *Manager
	store   Snapshotter
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(manager *Manager, store Snapshotter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{manager: manager, store: store, logger: logger}
}

// ServeHTTP streams events until the client goes away or the manager closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("Failed to flush headers", "error", err)
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect()
	if err != nil {
		h.logger.Error("Failed to register SSE client", "error", err)
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With("client_id", client.ID)

	connected := Event{Type: EventConnected, Timestamp: time.Now(), Data: ConnectedEventData{ClientID: client.ID}}
	if err := h.sendEvent(w, rc, connected); err != nil {
		log.Warn("Failed to send connection event", "error", err)
		return
	}

	var lastVersion uint64
	if state := h.store.Snapshot(); state.Synced {
		if err := h.sendEvent(w, rc, NewStoreEvent(state)); err != nil {
			return
		}
		lastVersion = state.Version
	}

	ctx := r.Context()
	for {
		select {
		case event := <-client.EventChan:
			// Skip states this client already has, e.g. the one sent on connect.
			if data, ok := event.Data.(StoreEventData); ok {
				if data.Version <= lastVersion {
					continue
				}
				lastVersion = data.Version
			}
			if err := h.sendEvent(w, rc, event); err != nil {
				log.Info("Client disconnected during send")
				return
			}
		case <-client.Done:
			log.Info("Client closed by manager")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	if err := rc.SetWriteDeadline(time.Now().Add(60 * time.Second)); err != nil {
		h.logger.Debug("Failed to set write deadline", "error", err)
	}
	return nil
}
