package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/ternarybob/vendo/internal/models"
)

// ContentHash fingerprints a snapshot's normalized data. The JSON encoder
// sorts map keys, so equal snapshots always hash equally; the sync engine
// compares this against the hash recorded on the catalog product to skip
// redundant writes.
func ContentHash(after *models.ProductSnapshot) string {
	data, err := json.Marshal(after)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
