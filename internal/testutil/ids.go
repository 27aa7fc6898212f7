package testutil

// FixedIDGenerator returns the same request ID every time.
//
// HTTP tests use it so logged and echoed request IDs are predictable.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a fixed request ID generator.
//
// If id is empty, Generate() returns "test-request-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-request-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
//
// Implements httpapi.IDGenerator interface.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
