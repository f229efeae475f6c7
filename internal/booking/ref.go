package booking

import (
	"crypto/rand"
	"fmt"
	"time"
)

// NewRef returns a booking reference of the form PREFIX-YYMMDD-XXXXXX where
// the suffix is six random base32 characters.
func NewRef(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("060102"), rand.Text()[:6])
}
