// Package tx carries an open database transaction on a context so Postgres
// stores called inside RunInTx share it without threading *sql.Tx through
// their method signatures.
package tx

import (
	"context"
	"database/sql"
)

type activeTxKey struct{}

// Queryer is the statement surface shared by *sql.DB and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx returns ctx carrying tx. A nil tx leaves ctx unchanged.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, activeTxKey{}, tx)
}

// From returns the transaction on ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(activeTxKey{}).(*sql.Tx)
	return tx, ok
}

// Use returns the transaction on ctx, or db when there is none.
func Use(ctx context.Context, db *sql.DB) Queryer {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}
