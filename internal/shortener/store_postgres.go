package shortener

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sundayezeilo/shorturl/internal/errx"
	"github.com/sundayezeilo/shorturl/internal/idgen"
)

// ShortCodeConstraint is the name of the unique constraint on links.short_code.
const ShortCodeConstraint = "links_short_code_key"

const linkColumns = `id, original_url, short_code, clicks, created_at, expires_at`

const (
	pgFindByCode = `SELECT ` + linkColumns + ` FROM links WHERE short_code = $1`

	pgFindByURL = `SELECT ` + linkColumns + ` FROM links
		WHERE original_url = $1
		ORDER BY created_at DESC
		LIMIT 1`

	pgInsert = `INSERT INTO links (id, original_url, short_code, clicks, created_at, expires_at)
		VALUES (@id, @original_url, @short_code, 0, @created_at, @expires_at)
		RETURNING ` + linkColumns

	pgIncrementClicks = `UPDATE links SET clicks = clicks + 1
		WHERE short_code = @short_code
		  AND (expires_at IS NULL OR expires_at >= @now)
		RETURNING ` + linkColumns
)

// pgQuerier is the subset of *pgxpool.Pool the store uses.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a Store on PostgreSQL.
type PostgresStore struct {
	db  pgQuerier
	ids idgen.Generator
}

// NewPostgresStore creates a store on db. A nil ids defaults to UUID v7.
func NewPostgresStore(db pgQuerier, ids idgen.Generator) *PostgresStore {
	if ids == nil {
		ids = idgen.NewV7()
	}
	return &PostgresStore{db: db, ids: ids}
}

func isShortCodeUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == ShortCodeConstraint
}

func mapPgError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)
	case isShortCodeUniqueViolation(err):
		return errx.E(op, errx.Duplicate, err)
	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

func (s *PostgresStore) queryOne(ctx context.Context, op, sql string, args ...any) (Link, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return Link{}, mapPgError(op, err)
	}
	link, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Link])
	if err != nil {
		return Link{}, mapPgError(op, err)
	}
	return link, nil
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (Link, error) {
	return s.queryOne(ctx, "shortener.postgres.FindByCode", pgFindByCode, code)
}

func (s *PostgresStore) FindByURL(ctx context.Context, url string) (Link, error) {
	return s.queryOne(ctx, "shortener.postgres.FindByURL", pgFindByURL, url)
}

func (s *PostgresStore) Insert(ctx context.Context, link Link) (Link, error) {
	const op = "shortener.postgres.Insert"

	if link.ID == uuid.Nil {
		id, err := s.ids.Generate()
		if err != nil {
			return Link{}, errx.E(op, errx.Unavailable, err)
		}
		link.ID = id
	}

	return s.queryOne(ctx, op, pgInsert, pgx.NamedArgs{
		"id":           link.ID,
		"original_url": link.OriginalURL,
		"short_code":   link.ShortCode,
		"created_at":   link.CreatedAt,
		"expires_at":   link.ExpiresAt,
	})
}

func (s *PostgresStore) IncrementClicks(ctx context.Context, code string, now time.Time) (Link, error) {
	return s.queryOne(ctx, "shortener.postgres.IncrementClicks", pgIncrementClicks, pgx.NamedArgs{
		"short_code": code,
		"now":        now,
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return errx.E("shortener.postgres.Ping", errx.Unavailable, err)
	}
	return nil
}
