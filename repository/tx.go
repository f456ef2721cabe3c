package repository

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// TransactionManager opens a unit of work. The callback's transaction
// commits when it returns nil and rolls back on error or panic.
type TransactionManager interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

// Validator is implemented by managers that can check their wiring
type Validator interface {
	Validate() error
}

var _ TransactionManager = (*bun.DB)(nil)

// RunInTx runs f in a transaction unless ctx is already done
func RunInTx(ctx context.Context, tm TransactionManager, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return tm.RunInTx(ctx, nil, f)
	}
}
