package shortener

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sundayezeilo/shorturl/internal/errx"
	"github.com/sundayezeilo/shorturl/internal/idgen"
)

// Timestamps are stored as unix microseconds, the precision postgres keeps.
const (
	liteFindByCode = `SELECT ` + linkColumns + ` FROM links WHERE short_code = ?`

	liteFindByURL = `SELECT ` + linkColumns + ` FROM links
		WHERE original_url = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`

	liteInsert = `INSERT INTO links (id, original_url, short_code, clicks, created_at, expires_at)
		VALUES (?, ?, ?, 0, ?, ?)`

	liteIncrementClicks = `UPDATE links SET clicks = clicks + 1
		WHERE short_code = ?
		  AND (expires_at IS NULL OR expires_at >= ?)
		RETURNING ` + linkColumns
)

// SQLiteStore is a Store on SQLite through the pure Go modernc driver.
type SQLiteStore struct {
	db  *sql.DB
	ids idgen.Generator
}

// NewSQLiteStore creates a store on db. A nil ids defaults to UUID v7.
func NewSQLiteStore(db *sql.DB, ids idgen.Generator) *SQLiteStore {
	if ids == nil {
		ids = idgen.NewV7()
	}
	return &SQLiteStore{db: db, ids: ids}
}

func isSQLiteUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(liteErr.Error(), "links.short_code")
	default:
		return false
	}
}

func mapSQLiteError(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errx.E(op, errx.NotFound, err)
	case isSQLiteUniqueViolation(err):
		return errx.E(op, errx.Duplicate, err)
	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

func toMicros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us) }

func scanLiteLink(row *sql.Row) (Link, error) {
	var (
		l         Link
		id        string
		createdAt int64
		expiresAt sql.NullInt64
	)
	if err := row.Scan(&id, &l.OriginalURL, &l.ShortCode, &l.Clicks, &createdAt, &expiresAt); err != nil {
		return Link{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Link{}, err
	}
	l.ID = parsed
	l.CreatedAt = fromMicros(createdAt)
	if expiresAt.Valid {
		t := fromMicros(expiresAt.Int64)
		l.ExpiresAt = &t
	}
	return l, nil
}

func (s *SQLiteStore) queryOne(ctx context.Context, op, query string, args ...any) (Link, error) {
	link, err := scanLiteLink(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Link{}, mapSQLiteError(op, err)
	}
	return link, nil
}

func (s *SQLiteStore) FindByCode(ctx context.Context, code string) (Link, error) {
	return s.queryOne(ctx, "shortener.sqlite.FindByCode", liteFindByCode, code)
}

func (s *SQLiteStore) FindByURL(ctx context.Context, url string) (Link, error) {
	return s.queryOne(ctx, "shortener.sqlite.FindByURL", liteFindByURL, url)
}

func (s *SQLiteStore) Insert(ctx context.Context, link Link) (Link, error) {
	const op = "shortener.sqlite.Insert"

	if link.ID == uuid.Nil {
		id, err := s.ids.Generate()
		if err != nil {
			return Link{}, errx.E(op, errx.Unavailable, err)
		}
		link.ID = id
	}

	var expiresAt sql.NullInt64
	if link.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: toMicros(*link.ExpiresAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, liteInsert,
		link.ID.String(),
		link.OriginalURL,
		link.ShortCode,
		toMicros(link.CreatedAt),
		expiresAt,
	)
	if err != nil {
		return Link{}, mapSQLiteError(op, err)
	}
	return s.queryOne(ctx, op, liteFindByCode, link.ShortCode)
}

func (s *SQLiteStore) IncrementClicks(ctx context.Context, code string, now time.Time) (Link, error) {
	return s.queryOne(ctx, "shortener.sqlite.IncrementClicks", liteIncrementClicks, code, toMicros(now))
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errx.E("shortener.sqlite.Ping", errx.Unavailable, err)
	}
	return nil
}
