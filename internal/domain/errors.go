package domain

import (
	"errors"
	"fmt"
)

// Expected conditions are sentinel errors so callers can branch on them
// with errors.Is instead of matching message strings.
var (
	// ErrInsufficientData means fewer than the minimum usable daily points
	// exist, before or after outlier removal. Never retried.
	ErrInsufficientData = errors.New("not enough sales history")

	// ErrProductNotFound means the SKU is unknown. Never retried.
	ErrProductNotFound = errors.New("product not found")

	// ErrModelUnavailable means no artifact exists and on-demand training
	// also failed.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrTaskNotFound means the task id is unknown to the task store.
	ErrTaskNotFound = errors.New("task not found")
)

// TransientError marks a failure worth retrying, typically a numeric fit
// error. The orchestrator retries these with backoff; everything else
// fails immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable by the orchestrator.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
