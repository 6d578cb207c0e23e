package telemetry

import "github.com/google/uuid"

// NewID returns a new random identifier (a UUID string). The teacher's utils.GenerateID hand-rolled this with
// crypto/rand + hex; uuid.NewString gives the same random-id contract and
// is already present in the teacher's dependency tree (pulled in
// indirectly through libp2p).
func NewID() string {
	return uuid.NewString()
}
