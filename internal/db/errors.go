package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

var (
	// ErrNoteAlreadyExists indicates a note with the same ID already exists.
	ErrNoteAlreadyExists = errors.New("note already exists")

	// ErrTransactionConflict indicates concurrent writers touched the same
	// records. Callers may retry.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound indicates the requested note does not exist.
	ErrNotFound = errors.New("note not found")
)

// wrapQueryError maps known SurrealDB query errors onto sentinels and
// returns anything else unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "already exists") {
			return fmt.Errorf("%w: %s", ErrNoteAlreadyExists, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}
