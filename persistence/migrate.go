package persistence

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-taskman"
	"github.com/uptrace/bun"
)

type tableIndex struct {
	name   string
	model  any
	column string
}

// Migrate creates the users and tasks tables and their indexes when
// they do not exist yet. It is safe to run on every start.
func Migrate(ctx context.Context, db *bun.DB) error {
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewCreateTable().
			Model((*taskman.User)(nil)).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("migrate: users: %w", err)
		}

		if _, err := tx.NewCreateTable().
			Model((*taskman.Task)(nil)).
			IfNotExists().
			ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
			Exec(ctx); err != nil {
			return fmt.Errorf("migrate: tasks: %w", err)
		}

		indexes := []tableIndex{
			{name: "idx_tasks_user_id", model: (*taskman.Task)(nil), column: "user_id"},
			{name: "idx_tasks_status", model: (*taskman.Task)(nil), column: "status"},
			{name: "idx_tasks_created_at", model: (*taskman.Task)(nil), column: "created_at"},
		}

		for _, idx := range indexes {
			if _, err := tx.NewCreateIndex().
				Model(idx.model).
				Index(idx.name).
				Column(idx.column).
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("migrate: %s: %w", idx.name, err)
			}
		}
		return nil
	})

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "schema migration failed")
	}
	return nil
}
