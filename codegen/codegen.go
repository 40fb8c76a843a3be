// Package codegen generates and validates short codes.
// Generators should be safe for concurrent use.
package codegen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet is the set of symbols a short code may contain: digits, then
// upper case, then lower case letters.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var (
	ErrEmptyCode   = errors.New("code cannot be empty")
	ErrInvalidChar = errors.New("code must contain only letters and digits")
)

// Generator generates short codes.
// Implementations should be safe for concurrent use.
type Generator interface {
	Generate(length int) (string, error)
}

// base62Generator draws every symbol uniformly from Alphabet using crypto/rand.
type base62Generator struct {
	max *big.Int
}

// NewBase62 returns a new base62 code generator.
func NewBase62() Generator {
	return &base62Generator{max: big.NewInt(int64(len(Alphabet)))}
}

// Generate returns a random base62 string of the given length.
func (g *base62Generator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}

	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, g.max)
		if err != nil {
			return "", fmt.Errorf("codegen: read random: %w", err)
		}
		b[i] = Alphabet[n.Int64()]
	}

	return string(b), nil
}

// Valid reports whether code is a well formed short code no longer than maxLen.
// A maxLen of zero or less disables the length check.
func Valid(code string, maxLen int) error {
	if code == "" {
		return ErrEmptyCode
	}
	if maxLen > 0 && len(code) > maxLen {
		return fmt.Errorf("code too long (maximum %d characters)", maxLen)
	}
	for _, c := range code {
		if !strings.ContainsRune(Alphabet, c) {
			return ErrInvalidChar
		}
	}
	return nil
}
