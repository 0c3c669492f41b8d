// Package sse streams store document changes to browsers as Server-Sent Events.
package sse

import (
	"time"

	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/storesync"
)

// EventType names an SSE event.
type EventType string

const (
	// EventConnected is the first event on every stream.
	EventConnected EventType = "connected"
	// EventStoreUpdated carries a full merged store document.
	EventStoreUpdated EventType = "store.updated"
	// EventHeartbeat keeps idle connections open through proxies.
	EventHeartbeat EventType = "heartbeat"
)

// Event is one message on the stream.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// ConnectedEventData is the payload of EventConnected.
type ConnectedEventData struct {
	ClientID string `json:"clientId"`
}

// StoreEventData is the payload of EventStoreUpdated.
type StoreEventData struct {
	UpdatedAt time.Time            `json:"updatedAt"`
	Doc       domain.StoreDocument `json:"doc"`
	Version   uint64               `json:"version"`
}

// HeartbeatEventData is the payload of EventHeartbeat.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"serverTime"`
}

// NewStoreEvent wraps a synchronized store state.
func NewStoreEvent(state storesync.State) Event {
	return Event{
		Type:      EventStoreUpdated,
		Timestamp: time.Now(),
		Data: StoreEventData{
			Doc:       state.Doc,
			Version:   state.Version,
			UpdatedAt: state.UpdatedAt,
		},
	}
}

// NewHeartbeatEvent creates a heartbeat stamped with the current time.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{Type: EventHeartbeat, Timestamp: now, Data: HeartbeatEventData{ServerTime: now}}
}
