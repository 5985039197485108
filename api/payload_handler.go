package api

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/metadata"
)

// maxListedFiles caps each file list of MissingResponse.
const maxListedFiles = 500

var errPayloadNotConfigured = fiber.NewError(fiber.StatusServiceUnavailable, "payload sync is not configured")

// UpdatePayloadRequest selects the records a payload sync patches.
type UpdatePayloadRequest struct {
	Filename string `json:"filename"`
	All      bool   `json:"all"`
}

// UpdatePayloadResponse acknowledges a started payload sync.
type UpdatePayloadResponse struct {
	Message string `json:"message"`
}

// MissingResponse reports metadata records without an indexed image. The
// file lists hold at most 500 keys each; the counts are exact.
type MissingResponse struct {
	TotalRecords  int  `json:"total_records"`
	TotalIndexed  int  `json:"total_indexed"`
	TotalMissing  int  `json:"total_missing_in_index"`
	BucketChecked bool `json:"bucket_checked"`

	ReadyToIndexCount    int `json:"ready_to_index_count"`
	MissingInBucketCount int `json:"missing_in_bucket_count"`

	MissingFiles         []string `json:"missing_files"`
	ReadyToIndexFiles    []string `json:"ready_to_index_files"`
	MissingInBucketFiles []string `json:"missing_in_bucket_files"`
}

// handleUpdatePayload starts a payload sync in the background and returns
// 202. A sync that is already active yields 409.
func (s *Server) handleUpdatePayload(c *fiber.Ctx) error {
	if s.config.Payload == nil {
		return errPayloadNotConfigured
	}

	var req UpdatePayloadRequest
	if err := c.BodyParser(&req); err != nil {
		return errdefs.Invalid("body", "must be a JSON request with a filename or all")
	}
	job := metadata.SyncRequest{Filename: strings.TrimSpace(req.Filename), All: req.All}
	if err := job.Validate(); err != nil {
		return err
	}

	if err := s.config.Payload.Start(job); err != nil {
		return err
	}

	mode := "all records"
	if job.Filename != "" {
		mode = fmt.Sprintf("file %q", job.Filename)
	}
	return c.Status(fiber.StatusAccepted).JSON(UpdatePayloadResponse{
		Message: "payload update started in the background for " + mode,
	})
}

// handleMissing compares the metadata store with the index and the bucket.
func (s *Server) handleMissing(c *fiber.Ctx) error {
	if s.config.Payload == nil {
		return errPayloadNotConfigured
	}

	report, err := s.config.Payload.Missing(c.UserContext())
	if err != nil {
		return err
	}

	return c.JSON(MissingResponse{
		TotalRecords:         report.Records,
		TotalIndexed:         report.Indexed,
		TotalMissing:         len(report.Missing),
		BucketChecked:        report.BucketChecked,
		ReadyToIndexCount:    len(report.ReadyToIndex),
		MissingInBucketCount: len(report.MissingInBucket),
		MissingFiles:         capped(report.Missing),
		ReadyToIndexFiles:    capped(report.ReadyToIndex),
		MissingInBucketFiles: capped(report.MissingInBucket),
	})
}

// capped trims keys to maxListedFiles and never returns nil.
func capped(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys[:min(len(keys), maxListedFiles)]
}
