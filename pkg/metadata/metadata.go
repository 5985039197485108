// Package metadata syncs per-image metadata from a relational store into the
// payload of indexed points.
package metadata

import (
	"context"
	"database/sql"
	"iter"
)

// Record is the metadata row for one image. Filename is relative to the
// object store prefix.
type Record struct {
	Filename string
	NID      *int64
	Delta    *int64
}

// Source reads metadata records.
type Source interface {
	// Lookup returns the record for filename or an errdefs.ErrNotFound error.
	Lookup(ctx context.Context, filename string) (*Record, error)

	// Count returns the number of records Records will yield.
	Count(ctx context.Context) (int, error)

	// Records yields every record. Iteration stops at the first error.
	Records(ctx context.Context) iter.Seq2[Record, error]

	Close() error
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanRecord reads a (filename, nid, delta) row. NULL columns stay nil.
func ScanRecord(row Scanner) (*Record, error) {
	var (
		rec        Record
		nid, delta sql.NullInt64
	)
	if err := row.Scan(&rec.Filename, &nid, &delta); err != nil {
		return nil, err
	}
	if nid.Valid {
		rec.NID = &nid.Int64
	}
	if delta.Valid {
		rec.Delta = &delta.Int64
	}
	return &rec, nil
}
