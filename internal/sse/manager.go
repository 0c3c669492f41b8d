package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stonewallbooks/storefront/internal/id"
)

const (
	eventBuffer  = 64
	clientBuffer = 16
)

// ClientObserver is told when clients come and go, typically for metrics.
type ClientObserver interface {
	ClientConnected()
	ClientDisconnected()
}

// Client is one connected stream.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
}

// Manager fans events out to every connected client.
type Manager struct {
	clients           map[string]*Client
	events            chan Event
	logger            *slog.Logger
	observer          ClientObserver
	wg                sync.WaitGroup
	heartbeatInterval time.Duration
	mu                sync.RWMutex

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewManager creates a Manager. observer may be nil.
func NewManager(logger *slog.Logger, observer ClientObserver) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		clients:           make(map[string]*Client),
		events:            make(chan Event, eventBuffer),
		logger:            logger,
		observer:          observer,
		heartbeatInterval: 30 * time.Second,
	}
}

// Start runs the broadcast loop until ctx is done or Shutdown is called.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info("SSE manager starting")

	heartbeat := time.NewTicker(m.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-m.events:
			if !ok {
				m.closeAllClients()
				return
			}
			m.broadcast(event)
		case <-heartbeat.C:
			m.broadcast(NewHeartbeatEvent())
		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers the ones already queued, and closes every client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownMu.Lock()
	if m.shutdown {
		m.shutdownMu.Unlock()
		return nil
	}
	m.shutdown = true
	close(m.events)
	m.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("SSE shutdown timed out")
		return ctx.Err()
	}
	m.closeAllClients()
	m.logger.Info("SSE manager shutdown complete")
	return nil
}

// broadcast delivers event to every client. Slow clients miss it rather than stall the rest.
func (m *Manager) broadcast(event Event) {
	var delivered, dropped int

	m.mu.RLock()
	for _, client := range m.clients {
		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
			m.logger.Warn("Dropped event for slow client", "client_id", client.ID, "event_type", event.Type)
		}
	}
	m.mu.RUnlock()

	if event.Type != EventHeartbeat {
		m.logger.Debug("Event broadcast",
			"event_type", event.Type,
			slog.Group("stats", slog.Int("delivered", delivered), slog.Int("dropped", dropped)))
	}
}

// Connect registers a client.
func (m *Manager) Connect() (*Client, error) {
	clientID, err := id.Generate("sse")
	if err != nil {
		return nil, err
	}
	client := &Client{
		ID:          clientID,
		EventChan:   make(chan Event, clientBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.clients[client.ID] = client
	total := len(m.clients)
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.ClientConnected()
	}
	m.logger.Info("SSE client connected", "client_id", clientID, "total_clients", total)
	return client, nil
}

// Disconnect removes a client. It is safe to call for a client already closed by the manager.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, clientID)
	total := len(m.clients)
	m.mu.Unlock()

	close(client.Done)
	if m.observer != nil {
		m.observer.ClientDisconnected()
	}
	m.logger.Info("SSE client disconnected",
		"client_id", clientID,
		"duration", time.Since(client.ConnectedAt),
		"total_clients", total)
}

// Emit queues an event for every client. Events after Shutdown are dropped.
func (m *Manager) Emit(event Event) {
	m.shutdownMu.RLock()
	defer m.shutdownMu.RUnlock()
	if m.shutdown {
		return
	}

	select {
	case m.events <- event:
	default:
		m.logger.Error("SSE event channel full, dropping event", "event_type", event.Type)
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, client := range clients {
		close(client.Done)
		if m.observer != nil {
			m.observer.ClientDisconnected()
		}
	}
	if len(clients) > 0 {
		m.logger.Info("All SSE clients disconnected", "count", len(clients))
	}
}
