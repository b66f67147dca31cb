package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const healthProbeTimeout = 2 * time.Second

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
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	components := map[string]ComponentHealth{
		"database": s.checkDatabase(ctx),
		"search":   s.checkSearchIndex(ctx),
	}

	overall := "healthy"
	for _, c := range components {
		switch c.Status {
		case "unhealthy":
			overall = "unhealthy"
		case "degraded":
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkDatabase verifies the store answers a trivial query.
func (s *Server) checkDatabase(ctx context.Context) ComponentHealth {
	if s.services.Store == nil {
		return ComponentHealth{Status: "unhealthy", Message: "store not configured"}
	}

	start := time.Now()
	if _, err := s.services.Store.CountPosts(ctx); err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: time.Since(start).String(),
			Message: err.Error(),
		}
	}
	return ComponentHealth{Status: "healthy", Latency: time.Since(start).String()}
}

// checkSearchIndex reports degraded while index updates await repair:
// searches still work but may miss recent writes.
func (s *Server) checkSearchIndex(ctx context.Context) ComponentHealth {
	if s.services.Search == nil {
		return ComponentHealth{Status: "unhealthy", Message: "search not configured"}
	}

	start := time.Now()
	flagged, err := s.services.Search.FlaggedCount(ctx)
	latency := time.Since(start).String()
	if err != nil {
		return ComponentHealth{Status: "unhealthy", Latency: latency, Message: err.Error()}
	}
	if flagged > 0 {
		return ComponentHealth{
			Status:  "degraded",
			Latency: latency,
			Message: fmt.Sprintf("%d entities awaiting index repair", flagged),
		}
	}
	return ComponentHealth{Status: "healthy", Latency: latency}
}
