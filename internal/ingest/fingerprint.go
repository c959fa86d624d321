// Package ingest turns scraped detail pages into persisted listings.
package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

const fingerprintLength = 16

// SourceID is the dedup key of a scraped listing: the category prefix and a
// truncated hash of its source URL. Collisions are accepted as negligible.
func SourceID(category models.Category, sourceURL string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(sourceURL)))
	return category.SourcePrefix() + "_" + hex.EncodeToString(sum[:])[:fingerprintLength]
}
