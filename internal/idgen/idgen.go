// Package idgen generates row identifiers for links.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator generates unique identifiers.
// Implementations should be safe for concurrent use.
type Generator interface {
	Generate() (uuid.UUID, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() (uuid.UUID, error)

func (f GeneratorFunc) Generate() (uuid.UUID, error) { return f() }

type v7Gen struct {
	retries int
}

type Option func(*v7Gen)

// WithRetries sets how many times to retry uuid.NewV7 after the first attempt.
// Negative values are ignored.
func WithRetries(n int) Option {
	return func(g *v7Gen) {
		if n >= 0 {
			g.retries = n
		}
	}
}

// NewV7 returns a Generator of time-ordered UUID v7 values, which keep
// primary key inserts local in the b-tree.
func NewV7(opts ...Option) Generator {
	g := &v7Gen{retries: 1}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *v7Gen) Generate() (uuid.UUID, error) {
	var last error
	for range g.retries + 1 {
		id, err := uuid.NewV7()
		if err == nil {
			return id, nil
		}
		last = err
	}
	return uuid.Nil, fmt.Errorf("idgen: uuid v7 failed after %d attempts: %w", g.retries+1, last)
}
