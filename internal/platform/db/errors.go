package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/dentalclinic/records/internal/platform/apperr"
)

// Postgres SQLSTATE codes surfaced to callers.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
)

// MapError translates driver errors into the apperr taxonomy. resource and
// id only feed the NotFound message.
func MapError(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource, id)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.Conflict(resource+" already exists", err)
		case pgForeignKeyViolation:
			return apperr.Persistence(resource+" references a missing record", err)
		case pgNotNullViolation, pgCheckViolation:
			return apperr.Persistence(resource+" is missing a required value", err)
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict(resource+" already exists", err)
	}
	return apperr.Persistence("failed to write "+resource, err)
}
