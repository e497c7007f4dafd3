package source

import (
	"context"
)

import (
	"github.com/nanjiek/pixiu-cow/internal/config"
)

// Payload is a normalized flag set fetched from an external source.
type Payload struct {
	Flags   []config.Flag
	Version string
}

// Source fetches flags from an external system (e.g., a config server).
type Source interface {
	Fetch(ctx context.Context) (Payload, error)
}
