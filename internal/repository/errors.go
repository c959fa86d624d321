package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrDuplicate is returned when an insert hits a unique key.
	ErrDuplicate = errors.New("duplicate key")
	// ErrConflict is returned when a conditional update matched no row.
	ErrConflict = errors.New("conditional update matched no row")
	// ErrInsufficientCredits is returned when a wallet cannot cover a debit.
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotFound            = errors.New("not found")
	// ErrScheduleActive is returned when a pin would orphan pending bumps.
	ErrScheduleActive = errors.New("listing has pending scheduled bumps")
)

const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
