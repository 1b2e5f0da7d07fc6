// services/common.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/store"
)

// storeErr maps store sentinels onto the error taxonomy. Anything else is an
// unexpected failure and is wrapped with the operation name.
func storeErr(op, what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewAppError(apperrors.CodeNotFound, what+" not found", nil)
	case errors.Is(err, store.ErrIdempotencyMismatch):
		return apperrors.NewAppError(apperrors.CodeInvalidInput, "idempotency key was already used for a different request", nil)
	case errors.Is(err, store.ErrConflict):
		return apperrors.NewAppError(apperrors.CodeAlreadyExists, what+" already exists", nil)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// decode unmarshals the JSON result of a store mutation.
func decode[T any](raw []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode mutation result: %w", err)
	}
	return &out, nil
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
