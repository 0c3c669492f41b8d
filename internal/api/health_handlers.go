package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// IndexStats reports on the search index. search.CatalogIndex implements it.
type IndexStats interface {
	DocumentCount() (uint64, error)
	Version() uint64
}

// ClientCounter reports connected stream clients. sse.Manager implements it.
type ClientCounter interface {
	ClientCount() int
}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Uptime     string                     `json:"uptime" doc:"Time since the server started"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"store":  s.checkStore(),
		"search": s.checkSearchIndex(),
		"sse":    s.checkStream(),
	}

	overall := statusHealthy
	for _, c := range components {
		switch c.Status {
		case statusUnhealthy:
			overall = statusUnhealthy
		case statusDegraded:
			if overall == statusHealthy {
				overall = statusDegraded
			}
		}
	}

	return &HealthOutput{Body: HealthResponse{
		Status:     overall,
		Uptime:     time.Since(s.startedAt).Truncate(time.Second).String(),
		Components: components,
	}}, nil
}

// checkStore reports whether the first snapshot has arrived. Until then reads serve the defaults.
func (s *Server) checkStore() ComponentHealth {
	if s.store == nil {
		return ComponentHealth{Status: statusDegraded, Message: "store not configured"}
	}
	state := s.store.Snapshot()
	if !state.Synced {
		return ComponentHealth{Status: statusDegraded, Message: "waiting for first snapshot, serving defaults"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Message: fmt.Sprintf("version %d, %d books", state.Version, len(state.Doc.Catalog)),
	}
}

func (s *Server) checkSearchIndex() ComponentHealth {
	if s.index == nil {
		return ComponentHealth{Status: statusDegraded, Message: "search index not configured"}
	}

	start := time.Now()
	count, err := s.index.DocumentCount()
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: latency.String(), Message: "search index unreachable"}
	}
	if s.store != nil && s.index.Version() < s.store.Snapshot().Version {
		return ComponentHealth{Status: statusDegraded, Latency: latency.String(), Message: "search index behind the store"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Latency: latency.String(),
		Message: fmt.Sprintf("%d books indexed", count),
	}
}

func (s *Server) checkStream() ComponentHealth {
	if s.clients == nil {
		return ComponentHealth{Status: statusDegraded, Message: "SSE manager not configured"}
	}
	switch n := s.clients.ClientCount(); n {
	case 0:
		return ComponentHealth{Status: statusHealthy, Message: "no connected clients"}
	case 1:
		return ComponentHealth{Status: statusHealthy, Message: "1 connected client"}
	default:
		return ComponentHealth{Status: statusHealthy, Message: fmt.Sprintf("%d connected clients", n)}
	}
}
