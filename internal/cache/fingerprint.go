package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

// Fingerprint derives a deterministic cache key from the ad's content
// fields. Ads with identical content always map to the same key, so
// concurrent writers for the same fingerprint cannot diverge.
func Fingerprint(ad *domain.Ad) string {
	h := sha256.New()

	// Length-prefix the variable fields so adjacent values cannot
	// collide across field boundaries.
	fmt.Fprintf(h, "%d:%s", len(ad.Name), ad.Name)
	fmt.Fprintf(h, "%d:%s", len(ad.Description), ad.Description)
	fmt.Fprintf(h, "%d", ad.Category)
	fmt.Fprintf(h, ":%d", ad.ImagesQty)
	fmt.Fprintf(h, ":%t", ad.SellerIsVerified)

	return hex.EncodeToString(h.Sum(nil))
}
