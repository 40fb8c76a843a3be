package shortener

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

/***************
 * Mocks
 ***************/

// mockStore implements Store. Unset funcs fall through to an in-memory store.
type mockStore struct {
	findByCodeFunc      func(ctx context.Context, code string) (Link, error)
	findByURLFunc       func(ctx context.Context, url string) (Link, error)
	insertFunc          func(ctx context.Context, link Link) (Link, error)
	incrementClicksFunc func(ctx context.Context, code string, now time.Time) (Link, error)

	mu          sync.Mutex
	insertCalls int
	mem         *MemoryStore
}

func newMockStore() *mockStore {
	return &mockStore{mem: NewMemoryStore()}
}

func (m *mockStore) FindByCode(ctx context.Context, code string) (Link, error) {
	if m.findByCodeFunc != nil {
		return m.findByCodeFunc(ctx, code)
	}
	return m.mem.FindByCode(ctx, code)
}

func (m *mockStore) FindByURL(ctx context.Context, url string) (Link, error) {
	if m.findByURLFunc != nil {
		return m.findByURLFunc(ctx, url)
	}
	return m.mem.FindByURL(ctx, url)
}

func (m *mockStore) Insert(ctx context.Context, link Link) (Link, error) {
	m.mu.Lock()
	m.insertCalls++
	m.mu.Unlock()

	if m.insertFunc != nil {
		return m.insertFunc(ctx, link)
	}
	return m.mem.Insert(ctx, link)
}

func (m *mockStore) IncrementClicks(ctx context.Context, code string, now time.Time) (Link, error) {
	if m.incrementClicksFunc != nil {
		return m.incrementClicksFunc(ctx, code, now)
	}
	return m.mem.IncrementClicks(ctx, code, now)
}

func (m *mockStore) Ping(ctx context.Context) error { return nil }

func (m *mockStore) inserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertCalls
}

// mockGenerator returns codes in order, then repeats the last one.
type mockGenerator struct {
	generateFunc func(length int) (string, error)
	codes        []string
	callCount    int
}

func (m *mockGenerator) Generate(length int) (string, error) {
	m.callCount++

	if m.generateFunc != nil {
		return m.generateFunc(length)
	}
	if len(m.codes) == 0 {
		return "abc123", nil
	}
	idx := min(m.callCount-1, len(m.codes)-1)
	return m.codes[idx], nil
}

// mockCache is a map backed LinkCache.
type mockCache struct {
	mu    sync.Mutex
	items map[string]CachedLink
	gets  int
	sets  int
}

func newMockCache() *mockCache {
	return &mockCache{items: make(map[string]CachedLink)}
}

func (c *mockCache) Get(_ context.Context, code string) (CachedLink, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	l, ok := c.items[code]
	return l, ok
}

func (c *mockCache) Set(_ context.Context, l CachedLink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.items[l.ShortCode] = l
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seed inserts a link directly into the backing store.
func seed(t testing.TB, s Store, link Link) Link {
	t.Helper()
	created, err := s.Insert(context.Background(), link)
	if err != nil {
		t.Fatalf("seed Insert(%q) unexpected error: %v", link.ShortCode, err)
	}
	return created
}
