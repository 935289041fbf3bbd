package credentials

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	// ErrNotFound matches any *NotFoundError.
	ErrNotFound = errors.New("account not found")

	// ErrStore matches any *StoreError.
	ErrStore = errors.New("credential store failure")

	// ErrInvariant is wrapped by a *StoreError when the single-active rule is found broken.
	ErrInvariant = errors.New("single active account invariant violated")
)

// NotFoundError reports an operation on an account that is not stored.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("account %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StoreError is a persistence fault. It is fatal for the triggering operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "credentials " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	// Keep the innermost StoreError when a nested transaction already classified it.
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: errors.WithStack(err)}
}
