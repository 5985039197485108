package api

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
)

// IndexRequest starts a bulk run.
type IndexRequest struct {
	ForceReindex bool `json:"force_reindex"`
}

// IndexResponse acknowledges a started bulk run.
type IndexResponse struct {
	Message string `json:"message"`
	Bucket  string `json:"bucket"`
	RunID   string `json:"run_id"`
}

// IndexOneRequest indexes a single object.
type IndexOneRequest struct {
	Filename string `json:"filename"`
}

// IndexOneResponse reports a single indexed object.
type IndexOneResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	ID       string `json:"id"`
}

// handleIndex starts a bulk run in the background and returns 202. A run
// that is already active yields 409.
func (s *Server) handleIndex(c *fiber.Ctx) error {
	var req IndexRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errdefs.Invalid("body", "must be a JSON index request")
		}
	}

	runID, err := s.config.Indexer.Start(req.ForceReindex)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(IndexResponse{
		Message: "indexing started in the background",
		Bucket:  s.config.Bucket,
		RunID:   runID,
	})
}

// handleIndexOne indexes one object synchronously.
func (s *Server) handleIndexOne(c *fiber.Ctx) error {
	var req IndexOneRequest
	if err := c.BodyParser(&req); err != nil {
		return errdefs.Invalid("body", "must be a JSON request with a filename")
	}
	req.Filename = strings.TrimSpace(req.Filename)
	if req.Filename == "" {
		return errdefs.Invalid("filename", "is required")
	}

	p, err := s.config.Indexer.IndexOne(c.UserContext(), req.Filename)
	if err != nil {
		return err
	}

	return c.JSON(IndexOneResponse{
		Message:  fmt.Sprintf("image %q indexed", req.Filename),
		Filename: req.Filename,
		ID:       p.ID,
	})
}

// handleIndexStatus returns the job state.
func (s *Server) handleIndexStatus(c *fiber.Ctx) error {
	return c.JSON(s.config.Indexer.Status())
}
