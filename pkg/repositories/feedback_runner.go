package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/database"
)

// rowScanner is the subset of pgx.Rows and *sql.Rows the store reads through.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// runner executes SQL against one of the two backing stores.
// queryRow returns apperrors.ErrNotFound when no row matches.
type runner interface {
	query(ctx context.Context, query string, args []any, each func(rowScanner) error) error
	queryRow(ctx context.Context, query string, args []any, dest ...any) error
	exec(ctx context.Context, query string, args []any) (int64, error)
}

type pgxRunner struct {
	db *database.DB
}

func (r pgxRunner) query(ctx context.Context, query string, args []any, each func(rowScanner) error) error {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := each(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r pgxRunner) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	err := r.db.QueryRow(ctx, query, args...).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	return err
}

func (r pgxRunner) exec(ctx context.Context, query string, args []any) (int64, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type sqlRunner struct {
	db *database.SQLiteDB
}

func (r sqlRunner) query(ctx context.Context, query string, args []any, each func(rowScanner) error) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := each(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r sqlRunner) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	err := r.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	return err
}

func (r sqlRunner) exec(ctx context.Context, query string, args []any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
