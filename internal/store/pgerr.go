package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// postgres error codes this package translates into sentinel errors so
// callers can branch with errors.Is instead of string-matching driver
// messages.
const (
	pgUniqueViolation     = "23505"
	pgSerializationFailure = "40001"
)

// Translate maps a raw driver error to a store sentinel where one applies,
// and passes everything else through unchanged. Callers branch on the
// result with errors.Is(err, store.ErrDuplicateKey) etc.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicateKey
		case pgSerializationFailure:
			return ErrVersionConflict
		}
	}
	return err
}
