// internal/infrastructure/database/postgres/errors.go
package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
	"github.com/your-org/asset-inventory/internal/pkg/txn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres SQLSTATE codes that mean "retry the unit of work"
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// translate maps driver errors onto domain error kinds. Anything it does
// not recognise is wrapped with the operation name.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperror.ConcurrencyConflict(err, "failed to %s: duplicate key", op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeUniqueViolation:
			return apperror.ConcurrencyConflict(err, "failed to %s", op)
		}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

// NewTransactor returns a transactor whose commit failures are classified
// like statement errors, so serialization failures surface as conflicts
func NewTransactor(db *gorm.DB) *txn.GormTransactor {
	return txn.NewGormTransactor(db, txn.WithErrorTranslator(func(err error) error {
		return translate(err, "commit transaction")
	}))
}

// lockForUpdate adds SELECT ... FOR UPDATE on dialects that support it
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() != "postgres" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
