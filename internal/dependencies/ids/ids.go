package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Generator produces identifiers that can be mocked for testing
type Generator interface {
	// New returns a fresh identifier with the given prefix
	New(prefix string) string
}

// UUIDGenerator implements Generator with random v4 UUIDs
type UUIDGenerator struct{}

// New creates a new UUIDGenerator
func New() *UUIDGenerator {
	return &UUIDGenerator{}
}

// New returns prefix followed by a compact UUID
func (g *UUIDGenerator) New(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
