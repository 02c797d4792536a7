package shared

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Business key prefixes.
const (
	PrefixAcquisition = "ACQ"
	PrefixSettlement  = "STL"
)

// KeyGenerator produces human-readable business keys.
type KeyGenerator func(prefix string, at time.Time) string

// NewBusinessKey returns PREFIX_YYYYMMDD_NNNN with a random 4 digit suffix.
// Uniqueness is enforced by the storage layer; callers retry on collision.
func NewBusinessKey(prefix string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%04d", prefix, at.Format("20060102"), rand.IntN(10000))
}
