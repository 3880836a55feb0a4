// Package timeout provides a wrapper for pool.Pool that confirms every passed
// in context.Context has a timeout.
package timeout

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"go.skia.org/culprit/go/ctxutil"
	"go.skia.org/culprit/go/sql/pool"
)

// ContextTimeout implements pool.Pool and confirms that every passed in
// context.Context has a timeout.
type ContextTimeout struct {
	db pool.Pool
}

// New returns a ContextTimeout that wraps the given pool.Pool.
func New(db pool.Pool) ContextTimeout {
	return ContextTimeout{db: db}
}

// Close implements pool.Pool.
func (c ContextTimeout) Close() {
	c.db.Close()
}

// Exec implements pool.Pool.
func (c ContextTimeout) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	ctxutil.ConfirmContextHasDeadline(ctx)
	return c.db.Exec(ctx, sql, arguments...)
}

// Query implements pool.Pool.
func (c ContextTimeout) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctxutil.ConfirmContextHasDeadline(ctx)
	return c.db.Query(ctx, sql, args...)
}

// QueryRow implements pool.Pool.
func (c ContextTimeout) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctxutil.ConfirmContextHasDeadline(ctx)
	return c.db.QueryRow(ctx, sql, args...)
}

// Begin implements pool.Pool.
func (c ContextTimeout) Begin(ctx context.Context) (pgx.Tx, error) {
	ctxutil.ConfirmContextHasDeadline(ctx)
	return c.db.Begin(ctx)
}

// BeginTxFunc implements pool.Pool.
func (c ContextTimeout) BeginTxFunc(ctx context.Context, txOptions pgx.TxOptions, f func(pgx.Tx) error) error {
	ctxutil.ConfirmContextHasDeadline(ctx)
	return c.db.BeginTxFunc(ctx, txOptions, f)
}

var _ pool.Pool = ContextTimeout{}
