package index

import (
	"strings"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
)

// DeltaFilter restricts results by the delta payload field.
type DeltaFilter string

const (
	// DeltaAny applies no restriction.
	DeltaAny DeltaFilter = ""

	// DeltaZero keeps points with delta == 0.
	DeltaZero DeltaFilter = "0"

	// DeltaPositive keeps points with delta > 0.
	DeltaPositive DeltaFilter = ">0"
)

// Filter holds payload conditions for Search.
type Filter struct {
	Delta DeltaFilter
}

// ParseDelta accepts "", "alle", "0" and ">0".
func ParseDelta(s string) (DeltaFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "alle":
		return DeltaAny, nil
	case "0":
		return DeltaZero, nil
	case ">0":
		return DeltaPositive, nil
	default:
		return DeltaAny, errdefs.Invalid("delta", `must be one of "alle", "0", ">0"`)
	}
}

// Match reports whether p passes f. Points without a delta never match a
// delta condition.
func (f Filter) Match(p Payload) bool {
	switch f.Delta {
	case DeltaZero:
		return p.Delta != nil && *p.Delta == 0
	case DeltaPositive:
		return p.Delta != nil && *p.Delta > 0
	default:
		return true
	}
}
