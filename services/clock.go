package services

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time.Now so validators and detectors are deterministic
// under test.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts submission/profile id creation.
type IDGenerator interface {
	NewID() string
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock (UTC).
func SystemClock() Clock { return systemClock{} }

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// UUIDGenerator returns the production id generator.
func UUIDGenerator() IDGenerator { return uuidGenerator{} }
