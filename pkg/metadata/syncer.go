package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/index"
)

// SyncResult counts the outcome of a bulk sync.
type SyncResult struct {
	Updated int `json:"updated"`

	// Skipped counts records without an indexed image.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Syncer patches nid and delta of indexed points from a Source.
type Syncer struct {
	source Source
	index  index.Index
	prefix string
	logger *slog.Logger
}

// NewSyncer creates a Syncer. prefix is prepended to record filenames to
// form object keys.
func NewSyncer(source Source, idx index.Index, prefix string, logger *slog.Logger) (*Syncer, error) {
	if source == nil {
		return nil, errors.New("metadata source is required")
	}
	if idx == nil {
		return nil, errors.New("index is required")
	}
	return &Syncer{source: source, index: idx, prefix: prefix, logger: logger}, nil
}

// Key returns the object key for a record filename. Filenames that already
// carry the prefix are returned unchanged.
func (s *Syncer) Key(filename string) string {
	if strings.HasPrefix(filename, s.prefix) {
		return filename
	}
	return s.prefix + filename
}

// SyncOne patches the point for filename. A missing record or a missing
// point fails with errdefs.ErrNotFound.
func (s *Syncer) SyncOne(ctx context.Context, filename string) (*Record, error) {
	if filename == "" {
		return nil, errdefs.Invalid("filename", "is required")
	}

	rec, err := s.source.Lookup(ctx, filename)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, *rec); err != nil {
		return nil, err
	}

	s.logger.Info("payload updated", "key", s.Key(filename), "nid", value(rec.NID), "delta", value(rec.Delta))
	return rec, nil
}

// SyncAll patches every record. Records without an indexed image are
// skipped, other failures are counted. progress, if not nil, is called once
// per record. A failure reading the source aborts the sync.
func (s *Syncer) SyncAll(ctx context.Context, progress func()) (*SyncResult, error) {
	res := &SyncResult{}
	for rec, err := range s.source.Records(ctx) {
		if err != nil {
			return res, fmt.Errorf("reading metadata: %w", err)
		}

		switch err := s.apply(ctx, rec); {
		case err == nil:
			res.Updated++
		case errors.Is(err, errdefs.ErrNotFound):
			res.Skipped++
			s.logger.Debug("no indexed image for record", "key", s.Key(rec.Filename))
		default:
			res.Failed++
			s.logger.Error("updating payload failed", "key", s.Key(rec.Filename), "error", err)
		}

		if progress != nil {
			progress()
		}
	}

	s.logger.Info("payload sync finished", "updated", res.Updated, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (s *Syncer) apply(ctx context.Context, rec Record) error {
	key := s.Key(rec.Filename)
	p, err := s.index.FindByFilename(ctx, key)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", key, err)
	}
	if p == nil {
		return fmt.Errorf("%w: vector for key %s", errdefs.ErrNotFound, key)
	}

	if err := s.index.PatchPayload(ctx, p.ID, index.Patch{NID: rec.NID, Delta: rec.Delta}); err != nil {
		return fmt.Errorf("patching %s: %w", key, err)
	}
	return nil
}

// value dereferences p for logging.
func value(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
