package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-noc/ipreg/internal/domain"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so
// the repositories run unchanged inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres-backed implementation of domain.Store.
type Store struct {
	pool  *pgxpool.Pool
	q     querier
	inTx  bool
	order ListOrder
}

// NewStore wraps a pool. Order decides how IP listings are sorted; nil
// picks numeric inet ordering.
func NewStore(pool *pgxpool.Pool, order ListOrder) *Store {
	if order == nil {
		order = NumericOrder{}
	}
	return &Store{pool: pool, q: pool, order: order}
}

func (s *Store) IPs() domain.IPRepository         { return &IPRepository{q: s.q, order: s.order} }
func (s *Store) VLANs() domain.VLANRepository     { return &VLANRepository{q: s.q} }
func (s *Store) History() domain.HistoryRepository { return &HistoryRepository{q: s.q} }

// Atomic runs fn inside a transaction. A nested call joins the
// enclosing transaction instead of opening a new one.
func (s *Store) Atomic(ctx context.Context, fn func(domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, q: tx, inTx: true, order: s.order})
	})
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
