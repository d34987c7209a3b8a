package db

import (
	"context"
	"database/sql"
)

// Queryer is the subset of *sql.DB and *sql.Tx used by code that runs either
// standalone or inside a caller's transaction.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
