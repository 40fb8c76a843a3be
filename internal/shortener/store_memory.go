package shortener

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shorturl/internal/errx"
	"github.com/sundayezeilo/shorturl/internal/idgen"
)

var (
	errNoLink        = errors.New("link not found")
	errDuplicateCode = errors.New("short code already exists")
)

// MemoryStore is an in-process Store. It backs DB_DRIVER=memory and unit tests.
type MemoryStore struct {
	mu     sync.Mutex
	byCode map[string]*Link
	byURL  map[string][]*Link // insertion order, newest last
	ids    idgen.Generator
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCode: make(map[string]*Link),
		byURL:  make(map[string][]*Link),
		ids:    idgen.NewV7(),
	}
}

func (s *MemoryStore) FindByCode(_ context.Context, code string) (Link, error) {
	const op = "shortener.memory.FindByCode"

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byCode[code]
	if !ok {
		return Link{}, errx.E(op, errx.NotFound, errNoLink)
	}
	return copyLink(l), nil
}

func (s *MemoryStore) FindByURL(_ context.Context, url string) (Link, error) {
	const op = "shortener.memory.FindByURL"

	s.mu.Lock()
	defer s.mu.Unlock()

	links := s.byURL[url]
	if len(links) == 0 {
		return Link{}, errx.E(op, errx.NotFound, errNoLink)
	}
	return copyLink(links[len(links)-1]), nil
}

func (s *MemoryStore) Insert(_ context.Context, link Link) (Link, error) {
	const op = "shortener.memory.Insert"

	if link.ID == uuid.Nil {
		id, err := s.ids.Generate()
		if err != nil {
			return Link{}, errx.E(op, errx.Unavailable, err)
		}
		link.ID = id
	}
	link.Clicks = 0

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCode[link.ShortCode]; ok {
		return Link{}, errx.E(op, errx.Duplicate, errDuplicateCode)
	}
	stored := copyLink(&link)
	s.byCode[link.ShortCode] = &stored
	s.byURL[link.OriginalURL] = append(s.byURL[link.OriginalURL], &stored)
	return copyLink(&stored), nil
}

func (s *MemoryStore) IncrementClicks(_ context.Context, code string, now time.Time) (Link, error) {
	const op = "shortener.memory.IncrementClicks"

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byCode[code]
	if !ok || IsExpired(*l, now) {
		return Link{}, errx.E(op, errx.NotFound, errNoLink)
	}
	l.Clicks++
	return copyLink(l), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of stored links.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byCode)
}

func copyLink(l *Link) Link {
	out := *l
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}
