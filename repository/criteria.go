package repository

import (
	"sort"

	gorepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// SelectCriteria narrows a select query. It is applied to get, list,
// count and to the locking select run before update and delete.
type SelectCriteria = gorepo.SelectCriteria

// WhereEq filters rows where column equals value
func WhereEq(column string, value any) SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.? = ?", bun.Ident(column), value)
	}
}

// WhereFields applies an equality filter per entry. Nil values are
// skipped so optional filters can be passed straight through.
func WhereFields(filters map[string]any) SelectCriteria {
	keys := make([]string, 0, len(filters))
	for k, v := range filters {
		if isNilValue(v) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, k := range keys {
			q = q.Where("?TableAlias.? = ?", bun.Ident(k), filters[k])
		}
		return q
	}
}

// OwnedBy restricts rows to the given owner
func OwnedBy(column string, owner uuid.UUID) SelectCriteria {
	return gorepo.SelectBy(column, "=", owner.String())
}

// ForUpdate row locks the selected rows until the transaction ends.
// SQLite has no row locks and serializes writers per database, there
// the clause is left out.
func ForUpdate() SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if q.Dialect().Name() == dialect.SQLite {
			return q
		}
		return q.For("UPDATE")
	}
}

// OrderByInsertion orders rows by creation time, ties broken by id
func OrderByInsertion() SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("?TableAlias.created_at ASC").OrderExpr("?TableAlias.id ASC")
	}
}

func applyCriteria(q *bun.SelectQuery, criteria []SelectCriteria) *bun.SelectQuery {
	for _, c := range criteria {
		if c == nil {
			continue
		}
		q = c(q)
	}
	return q
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case *string:
		return t == nil
	case string:
		return t == ""
	}
	return false
}
