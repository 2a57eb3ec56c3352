package archive

import (
	"crypto/sha256"
	"fmt"

	"github.com/arteita/fretebot/internal/identity"
)

// HashPhone returns the hex-encoded SHA-256 hash of the normalized phone
// number so both 8 and 9 digit spellings of the same line hash alike.
func HashPhone(phone string) string {
	variants := identity.Variants(phone)
	canonical := identity.Normalize(phone)
	for _, v := range variants {
		if len(v) > len(canonical) {
			canonical = v
		}
	}
	h := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%x", h)
}
