// Package index defines the vector index that stores one point per image.
package index

import (
	"context"
	"slices"
	"strings"
)

// Payload is the metadata stored next to a vector.
type Payload struct {
	// Filename is the object key the point was built from.
	Filename string

	// ImageURL is the public URL at indexing time.
	ImageURL string

	// NID and Delta come from the relational metadata store and are unset
	// until a payload sync runs.
	NID   *int64
	Delta *int64
}

// Point is a stored embedding.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is a ranked search result.
type Hit struct {
	ID      string
	Score   float32
	Payload Payload
}

// Query describes a nearest-neighbor search.
type Query struct {
	Vector []float32
	Limit  int
	Offset int
	Filter Filter
}

// Patch is a partial payload update. Nil fields are left untouched.
type Patch struct {
	NID   *int64
	Delta *int64
}

// Index stores image points and answers similarity queries. Implementations
// must be safe for concurrent use.
type Index interface {
	// Exists reports whether a point with payload filename == key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Upsert inserts or overwrites points by id.
	Upsert(ctx context.Context, points ...Point) error

	// FindByFilename returns the point stored for key, including its vector,
	// or nil when there is none.
	FindByFilename(ctx context.Context, key string) (*Point, error)

	// Search returns hits ordered by SortHits, skipping Offset and returning
	// at most Limit.
	Search(ctx context.Context, q Query) ([]Hit, error)

	// PatchPayload updates payload fields of an existing point without
	// touching its vector. A missing id fails with errdefs.ErrNotFound.
	PatchPayload(ctx context.Context, id string, patch Patch) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	Close() error
}

// Payload field names as stored in the backends.
const (
	FieldFilename = "filename"
	FieldImageURL = "image_url"
	FieldNID      = "nid"
	FieldDelta    = "delta"
)

// SortHits orders hits by descending score, then ascending id so equal
// scores rank deterministically.
func SortHits(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.ID, b.ID)
		}
	})
}

// Window applies offset and limit to an already sorted slice.
func Window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
