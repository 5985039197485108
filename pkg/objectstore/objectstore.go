// Package objectstore lists and fetches images from an S3-compatible bucket.
package objectstore

import (
	"context"
	"iter"
	"path"
	"strings"
)

// Page is one listing page. NextToken is empty on the last page.
type Page struct {
	Keys      []string
	NextToken string
}

// Store is the read side of the bucket used by the indexer.
type Store interface {
	// ListPage returns the image keys of one page under the configured
	// prefix, starting at token ("" for the first page).
	ListPage(ctx context.Context, token string) (Page, error)

	// Keys walks every page lazily. Iteration stops after the first error.
	Keys(ctx context.Context) iter.Seq2[string, error]

	// Fetch returns the object's bytes.
	Fetch(ctx context.Context, key string) ([]byte, error)

	// PublicURL returns the public address of key.
	PublicURL(key string) string

	// Bucket names the bucket being served.
	Bucket() string
}

// URLBuilder joins a public base URL and object keys.
type URLBuilder string

// URL returns base + "/" + key with trailing slashes on base collapsed.
func (b URLBuilder) URL(key string) string {
	return strings.TrimRight(string(b), "/") + "/" + key
}

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// IsImageKey reports whether key looks like an indexable image under prefix.
// The prefix "directory" entry itself is never an image.
func IsImageKey(prefix, key string) bool {
	if key == "" || key == prefix || strings.HasSuffix(key, "/") {
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(key))]
	return ok
}

// Walk iterates every key of s page by page.
func Walk(ctx context.Context, s Store) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		token := ""
		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			page, err := s.ListPage(ctx, token)
			if err != nil {
				yield("", err)
				return
			}
			for _, k := range page.Keys {
				if !yield(k, nil) {
					return
				}
			}
			if page.NextToken == "" {
				return
			}
			token = page.NextToken
		}
	}
}
