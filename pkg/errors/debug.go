package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE values the API maps to something better than a 500.
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
)

// ErrorDump is the log-friendly view of an error chain.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGSchema     string `json:"pg_schema,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Dump flattens err for logging. Postgres details are read from either the
// pgx or the lib/pq error type.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode, d.PGConstraint, d.PGSchema = pgxErr.Code, pgxErr.ConstraintName, pgxErr.SchemaName
		d.PGTable, d.PGColumn = pgxErr.TableName, pgxErr.ColumnName
		d.PGDetail, d.PGMessage = pgxErr.Detail, pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode, d.PGConstraint, d.PGSchema = string(pqErr.Code), pqErr.Constraint, pqErr.Schema
		d.PGTable, d.PGColumn = pqErr.Table, pqErr.Column
		d.PGDetail, d.PGMessage = pqErr.Detail, pqErr.Message
	}
	return d
}

// IsContention reports whether err is a Postgres serialization failure,
// deadlock or lock timeout. The statement can be retried in a new transaction.
func IsContention(err error) bool {
	switch Dump(err).PGCode {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return true
	}
	return false
}

// Classify turns an untyped error into a typed one. Database contention is
// reported as a retryable dependency failure and duplicate rows as a
// conflict; everything else is internal.
func Classify(err error) *Error {
	if typed := As(err); typed != nil {
		return typed
	}
	if err == nil {
		return nil
	}
	dump := Dump(err)
	if dump.PGCode == sqlStateUniqueViolation {
		return Wrap(CodeConflict, err, "resource already exists")
	}
	if IsContention(err) {
		return Wrap(CodeDependency, err, "database busy, retry the request")
	}
	// sqlite reports constraint failures only through the message.
	if dump.PGCode == "" && strings.Contains(dump.TopMessage, "UNIQUE constraint failed") {
		return Wrap(CodeConflict, err, "resource already exists")
	}
	return Wrap(CodeInternal, err, "unexpected error")
}
