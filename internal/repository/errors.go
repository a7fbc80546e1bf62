package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound replaces gorm.ErrRecordNotFound at the repository boundary.
	ErrNotFound = errors.New("registro no encontrado")
	// ErrTransient marks serialization failures, deadlocks, lock and statement
	// timeouts. The whole unit of work was rolled back and may be retried.
	ErrTransient = errors.New("fallo transitorio de base de datos")
	// ErrUniqueViolation and ErrForeignKeyViolation are integrity failures.
	ErrUniqueViolation     = errors.New("violacion de unicidad")
	ErrForeignKeyViolation = errors.New("violacion de clave foranea")
)

// ConstraintError keeps the violated constraint name so callers can tell
// apart e.g. the open-session index from the sale-number index.
type ConstraintError struct {
	Kind       error
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Constraint, e.Err)
}

func (e *ConstraintError) Is(target error) bool { return target == e.Kind }

func (e *ConstraintError) Unwrap() error { return e.Err }

// classify maps driver/ORM errors onto the repository sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57014":
			return fmt.Errorf("%w: %s", ErrTransient, pgErr.Message)
		case "23505":
			return &ConstraintError{Kind: ErrUniqueViolation, Constraint: pgErr.ConstraintName, Err: err}
		case "23503":
			return &ConstraintError{Kind: ErrForeignKeyViolation, Constraint: pgErr.ConstraintName, Err: err}
		}
	}
	return err
}

// ConstraintName returns the violated constraint, or "" when err is not a
// constraint violation.
func ConstraintName(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

// Classify is exported for the service layer, which sees raw errors coming
// back from gorm's Transaction (commit failures).
func Classify(err error) error { return classify(err) }
