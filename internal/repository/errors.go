// Package repository implements the reservation store on MySQL using
// database/sql. Driver errors are translated into the service sentinels
// so higher layers never inspect MySQL error numbers.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/seat-reservation/internal/service"
)

// MySQL server error numbers handled explicitly.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errNoReferencedRow = 1452
)

// mapError translates driver errors into service sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return service.ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry:
			return service.ErrDuplicate
		case errDeadlock, errLockWaitTimeout:
			return service.ErrContention
		case errNoReferencedRow:
			return service.ErrNotFound
		}
	}
	return err
}
