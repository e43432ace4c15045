package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aluiziolira/divemeets-skill-rating/models"
)

//go:embed schema.sql
var schema string

const diverColumns = `id, first_name, last_name, gender, fina_age, hs_grad_year,
	springboard_rating, platform_rating, total_rating,
	version, deleted, created_at, updated_at, last_changed_at`

// SQLiteStore keeps records in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an open database that already has the schema applied.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.DiverRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+diverColumns+` FROM divers WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get diver %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec *models.DiverRecord) (*models.DiverRecord, error) {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO divers (`+diverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			gender = excluded.gender,
			fina_age = excluded.fina_age,
			hs_grad_year = excluded.hs_grad_year,
			springboard_rating = excluded.springboard_rating,
			platform_rating = excluded.platform_rating,
			total_rating = excluded.total_rating,
			version = divers.version + 1,
			deleted = 0,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			last_changed_at = excluded.last_changed_at
		WHERE divers.deleted = 1`,
		rec.ID, rec.FirstName, rec.LastName, rec.Gender,
		nullInt(rec.FinaAge), nullInt(rec.HSGradYear),
		rec.SpringboardRating, rec.PlatformRating, rec.TotalRating,
		now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create diver %s: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("create diver %s: %w", rec.ID, err)
	} else if n == 0 {
		return nil, ErrAlreadyExists
	}
	return s.Get(ctx, rec.ID)
}

func (s *SQLiteStore) Update(ctx context.Context, rec *models.DiverRecord, expectedVersion int) (*models.DiverRecord, error) {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE divers SET
			first_name = ?, last_name = ?, gender = ?, fina_age = ?, hs_grad_year = ?,
			springboard_rating = ?, platform_rating = ?, total_rating = ?,
			version = version + 1, updated_at = ?, last_changed_at = ?
		WHERE id = ? AND version = ? AND deleted = 0`,
		rec.FirstName, rec.LastName, rec.Gender, nullInt(rec.FinaAge), nullInt(rec.HSGradYear),
		rec.SpringboardRating, rec.PlatformRating, rec.TotalRating,
		now, now,
		rec.ID, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update diver %s: %w", rec.ID, err)
	}
	if err := s.checkChanged(ctx, res, rec.ID); err != nil {
		return nil, err
	}
	return s.Get(ctx, rec.ID)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string, expectedVersion int) error {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE divers SET deleted = 1, version = version + 1, updated_at = ?, last_changed_at = ?
		WHERE id = ? AND version = ? AND deleted = 0`,
		now, now, id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("delete diver %s: %w", id, err)
	}
	return s.checkChanged(ctx, res, id)
}

// CountStale counts records, deleted ones included, last changed at or before the cutoff.
func (s *SQLiteStore) CountStale(ctx context.Context, before time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM divers WHERE last_changed_at <= ?`, toMillis(before),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale divers: %w", err)
	}
	return n, nil
}

// checkChanged turns a zero-row conditional write into ErrNotFound or ErrVersionConflict.
func (s *SQLiteStore) checkChanged(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Deleted {
		return ErrNotFound
	}
	return ErrVersionConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.DiverRecord, error) {
	var (
		rec                                 models.DiverRecord
		finaAge, gradYear                   sql.NullInt64
		deleted                             int
		createdAt, updatedAt, lastChangedAt int64
	)
	err := row.Scan(
		&rec.ID, &rec.FirstName, &rec.LastName, &rec.Gender, &finaAge, &gradYear,
		&rec.SpringboardRating, &rec.PlatformRating, &rec.TotalRating,
		&rec.Version, &deleted, &createdAt, &updatedAt, &lastChangedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.FinaAge = intFromNull(finaAge)
	rec.HSGradYear = intFromNull(gradYear)
	rec.Deleted = deleted != 0
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	rec.LastChangedAt = fromMillis(lastChangedAt)
	return &rec, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
