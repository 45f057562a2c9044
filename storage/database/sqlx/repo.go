// Package sqlxrepos implements the repositories on postgres.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/storage/database"
)

// pq error codes
const (
	uniqueViolation = "23505"
)

type repo struct {
	db core.DB
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.db
}

// inTx runs `fn` within the caller's executor when provided, in a new transaction otherwise.
func (r repo) inTx(ctx context.Context, svcExec []core.DBExecutor, fn func(exe core.DBExecutor) error) error {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return fn(svcExec[0])
	}
	return database.WithTx(ctx, r.db, func(tx core.DBTransactor) error {
		return fn(tx)
	})
}

// violatedConstraint returns the unique constraint violated by `err`, if any.
func violatedConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// trapNoRows maps sql.ErrNoRows to `notFound`.
func trapNoRows(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// where accumulates the conditions and arguments of a query.
type where struct {
	conds []string
	args  []interface{}
}

// add appends a condition; `?` placeholders are rebound to the postgres syntax when rendered.
func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// in appends a `col IN (...)` condition.
func (w *where) in(col string, vals interface{}) error {
	q, args, err := sqlx.In(col+" IN (?)", vals)
	if err != nil {
		return err
	}
	w.add(q, args...)
	return nil
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE (" + strings.Join(w.conds, ") AND (") + ")"
}

// ilike escapes `s` for a case-insensitive substring match.
func ilike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
