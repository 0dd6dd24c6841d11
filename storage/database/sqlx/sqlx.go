// Package sqlxrepos implements the repositories on Postgres with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core"
)

const pqUniqueViolation = "23505"

var (
	mapper      = reflectx.NewMapperFunc("db", strings.ToLower)
	likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
)

// containsPattern returns an ILIKE pattern matching s literally anywhere in the column.
// Use it with `ESCAPE '\'`.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// getExec returns the executor passed by the caller, if any.
func getExec(db core.DB, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return db
}

// inTx runs fn in a new transaction, unless the caller already passed an executor.
func inTx(ctx context.Context, db core.DB, svcExec []core.DBExecutor, fn func(exec core.DBExecutor) error) error {
	if len(svcExec) > 0 {
		return fn(svcExec[0])
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == pqUniqueViolation
}

// query builds a `?` query, expands slice args and rebinds to `$n` placeholders.
func query(q string, args ...interface{}) (string, []interface{}, error) {
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.DOLLAR, q), args, nil
}

// namedExec executes a named query with the `db` tagged fields of arg.
func namedExec(ctx context.Context, exec core.DBExecutor, q string, arg interface{}) (sql.Result, error) {
	q, args, err := sqlx.BindNamed(sqlx.DOLLAR, q, arg)
	if err != nil {
		return nil, err
	}
	return exec.ExecContext(ctx, q, args...)
}

// selectRows scans every row of the query into dest, a pointer to a slice of structs.
func selectRows(ctx context.Context, exec core.DBExecutor, dest interface{}, q string, args ...interface{}) error {
	q, args, err := query(q, args...)
	if err != nil {
		return err
	}
	rows, err := exec.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	return sqlx.StructScan(rows, dest)
}

// getRow scans the first row of the query into dest, or returns sql.ErrNoRows.
func getRow(ctx context.Context, exec core.DBExecutor, dest interface{}, q string, args ...interface{}) error {
	q, args, err := query(q, args...)
	if err != nil {
		return err
	}
	rows, err := exec.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	r := &sqlx.Rows{Rows: rows, Mapper: mapper}
	defer func() { _ = r.Close() }()
	if !r.Next() {
		if err = r.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return r.StructScan(dest)
}

func orderBy(ordering []core.DBOrdering, allowed map[string]string, dflt string) string {
	ordering = core.FilterOrderings(ordering, allowed)
	if len(ordering) == 0 {
		return " ORDER BY " + dflt
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
