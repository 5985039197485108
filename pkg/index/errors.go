package index

import (
	"fmt"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
)

// CheckDimensions rejects vectors whose length differs from dims.
func CheckDimensions(dims int, points ...Point) error {
	for _, p := range points {
		if len(p.Vector) != dims {
			return errdefs.Invalid("vector", fmt.Sprintf("point %s has %d dimensions, index expects %d", p.ID, len(p.Vector), dims))
		}
	}
	return nil
}

// CheckQuery validates a Query against an index of dims dimensions.
func CheckQuery(dims int, q Query) error {
	if len(q.Vector) != dims {
		return errdefs.Invalid("vector", fmt.Sprintf("query has %d dimensions, index expects %d", len(q.Vector), dims))
	}
	if q.Limit < 0 {
		return errdefs.Invalid("limit", "must not be negative")
	}
	if q.Offset < 0 {
		return errdefs.Invalid("offset", "must not be negative")
	}
	return nil
}
