package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/logger"
	"github.com/stonewallbooks/storefront/internal/storesync"
)

type countingObserver struct {
	connected    atomic.Int32
	disconnected atomic.Int32
}

func (o *countingObserver) ClientConnected()    { o.connected.Add(1) }
func (o *countingObserver) ClientDisconnected() { o.disconnected.Add(1) }

type staticStore struct {
	state storesync.State
}

func (s staticStore) Snapshot() storesync.State { return s.state }

func syncedState(version uint64, title string) storesync.State {
	return storesync.State{
		Version: version,
		Synced:  true,
		Doc: domain.StoreDocument{
			Catalog: []domain.Book{{ID: "swb-1", Title: title}},
		},
	}
}

func TestManager_ConnectDisconnect(t *testing.T) {
	obs := &countingObserver{}
	m := NewManager(logger.Discard().Logger, obs)

	client, err := m.Connect()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(client.ID, "sse-"))
	assert.Equal(t, 1, m.ClientCount())

	m.Disconnect(client.ID)
	m.Disconnect(client.ID)

	assert.Equal(t, 0, m.ClientCount())
	assert.Equal(t, int32(1), obs.connected.Load())
	assert.Equal(t, int32(1), obs.disconnected.Load())

	select {
	case <-client.Done:
	default:
		t.Fatal("client done channel not closed")
	}
}

func TestManager_BroadcastsToEveryClient(t *testing.T) {
	m := NewManager(logger.Discard().Logger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	a, err := m.Connect()
	require.NoError(t, err)
	b, err := m.Connect()
	require.NoError(t, err)

	m.Emit(NewStoreEvent(syncedState(3, "Walden")))

	for _, c := range []*Client{a, b} {
		select {
		case event := <-c.EventChan:
			assert.Equal(t, EventStoreUpdated, event.Type)
			data, ok := event.Data.(StoreEventData)
			require.True(t, ok)
			assert.Equal(t, uint64(3), data.Version)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestManager_SlowClientDropsEvents(t *testing.T) {
	m := NewManager(logger.Discard().Logger, nil)
	client, err := m.Connect()
	require.NoError(t, err)

	for i := 0; i < clientBuffer+5; i++ {
		m.broadcast(NewHeartbeatEvent())
	}
	assert.Len(t, client.EventChan, clientBuffer)
}

func TestManager_ShutdownClosesClients(t *testing.T) {
	obs := &countingObserver{}
	m := NewManager(logger.Discard().Logger, obs)
	go m.Start(context.Background())

	client, err := m.Connect()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx))

	select {
	case <-client.Done:
	case <-time.After(time.Second):
		t.Fatal("client not closed on shutdown")
	}
	assert.Equal(t, 0, m.ClientCount())
	assert.Equal(t, int32(1), obs.disconnected.Load())

	// Emitting after shutdown must not panic.
	m.Emit(NewHeartbeatEvent())
}

func TestHandler_StreamsCurrentThenNewerStates(t *testing.T) {
	m := NewManager(logger.Discard().Logger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	h := NewHandler(m, staticStore{state: syncedState(2, "Walden")}, logger.Discard().Logger)
	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") || strings.HasPrefix(line, "data: ") {
				events <- line
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case line := <-events:
			return line
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.Equal(t, "event: connected", next())
	next()
	assert.Equal(t, "event: store.updated", next())
	assert.Contains(t, next(), `"version":2`)

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// Version 2 was already sent on connect and is skipped.
	m.Emit(NewStoreEvent(syncedState(2, "Walden")))
	m.Emit(NewStoreEvent(syncedState(5, "Leaves of Grass")))

	assert.Equal(t, "event: store.updated", next())
	data := next()
	assert.Contains(t, data, `"version":5`)
	assert.Contains(t, data, "Leaves of Grass")
}

func TestHandler_RejectsNonGet(t *testing.T) {
	m := NewManager(logger.Discard().Logger, nil)
	h := NewHandler(m, staticStore{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
