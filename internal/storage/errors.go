package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// MySQL server error numbers that matter for retry decisions.
const (
	mysqlErrDupEntry         = 1062
	mysqlErrBadNull          = 1048
	mysqlErrRowIsReferenced  = 1451
	mysqlErrNoReferencedRow  = 1452
	mysqlErrDataTooLong      = 1406
	mysqlErrCheckConstraint  = 3819
	mysqlErrLockWaitTimeout  = 1205
	mysqlErrLockDeadlock     = 1213
	mysqlErrTooManyConns     = 1040
	mysqlErrQueryInterrupted = 1317
)

// Classify wraps a driver error with ErrConstraintViolation or
// ErrTransientStore when the failure is recognized. Other errors are
// returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrConstraintViolation) || errors.Is(err, common.ErrTransientStore) {
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %w", common.ErrConstraintViolation, err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", common.ErrTransientStore, err)
		}
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDupEntry, mysqlErrBadNull, mysqlErrRowIsReferenced, mysqlErrNoReferencedRow,
			mysqlErrDataTooLong, mysqlErrCheckConstraint:
			return fmt.Errorf("%w: %w", common.ErrConstraintViolation, err)
		case mysqlErrLockWaitTimeout, mysqlErrLockDeadlock, mysqlErrTooManyConns, mysqlErrQueryInterrupted:
			return fmt.Errorf("%w: %w", common.ErrTransientStore, err)
		}
		return err
	}

	if errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", common.ErrTransientStore, err)
	}

	return err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, Classify(err))
}
