// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting driver errors themselves.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist (or is
// logically deleted).
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they may not touch, such as canceling another applicant's
// reservation.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be performed
// because of conflicting state, such as deleting a schedule that still
// has reservations or lowering capacity below the reserved count.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when a unique key rejects an insert.
var ErrDuplicate = errors.New("duplicate entry")

// ErrLockTimeout is returned when the database could not grant a row lock
// within innodb_lock_wait_timeout. The operation did not happen and may be
// retried.
var ErrLockTimeout = errors.New("lock wait timeout")

// ErrNoChange indicates an UPDATE matched a row but changed nothing.
var ErrNoChange = errors.New("no change")

// MySQL server error numbers we translate.
const (
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlock         = 1213
	mysqlLockNowaitFailed = 3572
)

// mapDBError converts driver errors into the package sentinels. Errors it
// does not recognise are returned unchanged.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry:
			return ErrDuplicate
		case mysqlLockWaitTimeout, mysqlLockNowaitFailed, mysqlDeadlock:
			return ErrLockTimeout
		}
	}
	return err
}
