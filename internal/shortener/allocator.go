package shortener

import (
	"context"
	"errors"

	"github.com/sundayezeilo/shorturl/codegen"
	"github.com/sundayezeilo/shorturl/internal/errx"
)

const (
	DefaultCodeLength  = 6
	DefaultMaxAttempts = 10
	MaxCodeLength      = 32
)

var (
	ErrCodeConflict        = errors.New("custom code already in use")
	ErrGenerationExhausted = errors.New("could not generate a unique short code")
)

// AllocatorConfig holds configuration for the allocator.
type AllocatorConfig struct {
	Generator   codegen.Generator
	CodeLength  int // length of generated codes (default: 6)
	MaxAttempts int // candidates tried before giving up (default: 10)
	Metrics     *Metrics
	// ReservedCodes are first path segments owned by other routes. They are
	// added to DefaultReservedCodes.
	ReservedCodes []string
}

// DefaultReservedCodes cannot be used as short codes because the router
// serves them itself.
var DefaultReservedCodes = []string{"api", "health", "metrics"}

// Allocator proposes short codes. It reserves nothing: the store's unique
// constraint at insert time is what actually claims a code.
type Allocator struct {
	store       Store
	gen         codegen.Generator
	codeLength  int
	maxAttempts int
	metrics     *Metrics
	reserved    map[string]struct{}
}

// NewAllocator creates an allocator backed by store.
func NewAllocator(store Store, cfg AllocatorConfig) *Allocator {
	if cfg.Generator == nil {
		cfg.Generator = codegen.NewBase62()
	}
	if cfg.CodeLength <= 0 || cfg.CodeLength > MaxCodeLength {
		cfg.CodeLength = DefaultCodeLength
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	reserved := make(map[string]struct{}, len(DefaultReservedCodes)+len(cfg.ReservedCodes))
	for _, codes := range [][]string{DefaultReservedCodes, cfg.ReservedCodes} {
		for _, code := range codes {
			if code != "" {
				reserved[code] = struct{}{}
			}
		}
	}

	return &Allocator{
		store:       store,
		gen:         cfg.Generator,
		codeLength:  cfg.CodeLength,
		maxAttempts: cfg.MaxAttempts,
		metrics:     cfg.Metrics,
		reserved:    reserved,
	}
}

// MaxAttempts returns the generation attempt bound.
func (a *Allocator) MaxAttempts() int { return a.maxAttempts }

// Allocate returns custom unchanged if it is valid and free, or a freshly
// generated code when custom is empty.
func (a *Allocator) Allocate(ctx context.Context, custom string) (string, error) {
	const op = "shortener.allocator.Allocate"

	if custom != "" {
		if err := codegen.Valid(custom, MaxCodeLength); err != nil {
			return "", errx.E(op, errx.Invalid, err)
		}
		if a.isReserved(custom) {
			return "", errx.E(op, errx.Conflict, ErrCodeConflict)
		}
		taken, err := a.taken(ctx, custom)
		if err != nil {
			return "", errx.Wrap(op, err)
		}
		if taken {
			return "", errx.E(op, errx.Conflict, ErrCodeConflict)
		}
		return custom, nil
	}

	for range a.maxAttempts {
		code, err := a.gen.Generate(a.codeLength)
		if err != nil {
			return "", errx.E(op, errx.Internal, err)
		}
		if a.isReserved(code) {
			continue
		}

		taken, err := a.taken(ctx, code)
		if err != nil {
			return "", errx.Wrap(op, err)
		}
		if !taken {
			return code, nil
		}
	}

	return "", errx.E(op, errx.Exhausted, ErrGenerationExhausted)
}

func (a *Allocator) isReserved(code string) bool {
	_, ok := a.reserved[code]
	return ok
}

func (a *Allocator) taken(ctx context.Context, code string) (bool, error) {
	_, err := a.store.FindByCode(ctx, code)
	switch {
	case err == nil:
		a.metrics.AllocationProbe.WithLabelValues("taken").Inc()
		return true, nil
	case errx.Is(err, errx.NotFound):
		a.metrics.AllocationProbe.WithLabelValues("free").Inc()
		return false, nil
	default:
		return false, err
	}
}
