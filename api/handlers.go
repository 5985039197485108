package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthPingTimeout = 2 * time.Second

// HealthResponse reports component readiness.
type HealthResponse struct {
	Status   string `json:"status"`
	Encoder  string `json:"encoder,omitempty"`
	Index    string `json:"index,omitempty"`
	Indexing bool   `json:"indexing"`
}

// handleHealth reports whether the service can answer queries. It returns
// 503 when the vector index is unreachable.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:   "ok",
		Indexing: s.config.Indexer.Status().Running,
	}

	if s.config.Encoder != nil {
		resp.Encoder = "loading"
		if s.config.Encoder.Ready() {
			resp.Encoder = "ready"
		}
	}

	if s.config.Index != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthPingTimeout)
		defer cancel()

		resp.Index = "ok"
		if err := s.config.Index.Ping(ctx); err != nil {
			s.logger.Warn("index health check failed", "error", err)
			resp.Index = "unavailable"
			resp.Status = "degraded"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
	}

	return c.JSON(resp)
}
