// Package postgres implements storage.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/groomly/libs/db"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	reader
	db     db.DB
	outbox *outbox.Repository
}

func New(pool db.DB) *Store {
	return &Store{
		reader: reader{q: pool},
		db:     pool,
		outbox: outbox.NewRepository(),
	}
}

func (s *Store) InTx(ctx context.Context, fn storage.TxFunc) error {
	pgxTx, err := s.db.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = pgxTx.Rollback(ctx) }()

	if err := fn(ctx, &tx{reader: reader{q: pgxTx}, tx: pgxTx, outbox: s.outbox}); err != nil {
		return mapErr(err)
	}
	return mapErr(pgxTx.Commit(ctx))
}

// mapErr translates driver errors into the domain sentinels callers branch on.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return model.ErrNotFound
	case db.IsRetryable(err):
		return fmt.Errorf("%w: %v", model.ErrConcurrencyConflict, err)
	}
	return err
}

// uuidArg canonicalizes an id compared against a UUID column. A malformed id
// cannot match any row and reports model.ErrNotFound.
func uuidArg(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", model.ErrNotFound
	}
	return u.String(), nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

var _ storage.Store = (*Store)(nil)
