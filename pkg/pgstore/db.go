package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/astra-social/entitlements/pkg/subscription"
)

// ErrQueryFailed wraps every database failure. It matches subscription.ErrNetwork.
var ErrQueryFailed = fmt.Errorf("postgres store: %w", subscription.ErrNetwork)

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
