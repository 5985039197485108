package indexer

import "github.com/google/uuid"

// pointNamespace scopes point ids so they cannot collide with other
// name-based UUIDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://totenbilder.at/imagesearch/points"))

// PointID derives the stable point id for an object key. Re-indexing a key
// always overwrites the same point.
func PointID(key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}
