package metadata

import (
	"context"
	"fmt"
	"slices"

	"github.com/totenbilder/imagesearch/pkg/objectstore"
)

// MissingReport lists metadata records whose image has no indexed point.
type MissingReport struct {
	// Records counts the distinct keys derived from the metadata store.
	Records int `json:"total_records"`
	Indexed int `json:"total_indexed"`

	// Missing holds every key without a point, sorted.
	Missing []string `json:"missing"`

	// BucketChecked is false when no bucket was consulted. ReadyToIndex and
	// MissingInBucket are then empty.
	BucketChecked   bool     `json:"bucket_checked"`
	ReadyToIndex    []string `json:"ready_to_index"`
	MissingInBucket []string `json:"missing_in_bucket"`
}

// Missing compares the metadata store with the index. Keys without a point
// are split by whether bucket holds the object; bucket may be nil to skip
// that check.
func (s *Syncer) Missing(ctx context.Context, bucket objectstore.Store) (*MissingReport, error) {
	seen := map[string]struct{}{}
	report := &MissingReport{}
	for rec, err := range s.source.Records(ctx) {
		if err != nil {
			return nil, fmt.Errorf("reading metadata: %w", err)
		}

		key := s.Key(rec.Filename)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		ok, err := s.index.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", key, err)
		}
		if ok {
			report.Indexed++
			continue
		}
		report.Missing = append(report.Missing, key)
	}
	report.Records = len(seen)
	slices.Sort(report.Missing)

	if bucket != nil {
		stored := map[string]struct{}{}
		for key, err := range bucket.Keys(ctx) {
			if err != nil {
				return nil, fmt.Errorf("listing bucket: %w", err)
			}
			stored[key] = struct{}{}
		}

		report.BucketChecked = true
		for _, key := range report.Missing {
			if _, ok := stored[key]; ok {
				report.ReadyToIndex = append(report.ReadyToIndex, key)
			} else {
				report.MissingInBucket = append(report.MissingInBucket, key)
			}
		}
	}

	s.logger.Info("missing check finished",
		"records", report.Records,
		"indexed", report.Indexed,
		"missing", len(report.Missing),
		"ready_to_index", len(report.ReadyToIndex),
		"missing_in_bucket", len(report.MissingInBucket),
	)
	return report, nil
}
