package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/seat-reservation/internal/service"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// conn returns the transaction carried by ctx, or db.
func conn(ctx context.Context, db *sql.DB) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

// Store bundles the MySQL repositories behind service.Store.
type Store struct {
	*MemberRepo
	*TokenRepo
	*RoomRepo
	*SeatRepo
	*BookingRepo
	*ViolationRepo

	db *sql.DB
}

var _ service.AdminStore = (*Store)(nil)

// NewStore returns a MySQL-backed Store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		MemberRepo:    NewMemberRepo(db),
		TokenRepo:     NewTokenRepo(db),
		RoomRepo:      NewRoomRepo(db),
		SeatRepo:      NewSeatRepo(db),
		BookingRepo:   NewBookingRepo(db),
		ViolationRepo: NewViolationRepo(db),
		db:            db,
	}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn in a transaction. Nested calls join the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	committed = true
	return nil
}
