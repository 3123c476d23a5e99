package dcb

import (
	"errors"
	"fmt"

	"github.com/coreflow/runtime/pkg/workpool"
)

// MaxDCBRetryAttempts is the attempt count from which WithDCBRetry adds a
// "giving up" message to a scope version conflict.
const MaxDCBRetryAttempts = 5

// WithDCBRetry wraps a CommitScope-guarded operation run inside a workpool
// task handler. A version conflict is the one error CommitScope expects
// callers to retry (§7); returning it unchanged lets the workpool's own
// backoff redeliver the task. Once task.AttemptCount reaches
// MaxDCBRetryAttempts the conflict is wrapped with a "giving up" message;
// the wrapped error still matches ErrVersionConflict, and the workpool
// treats it like any other failure. Retries end when the task reaches its
// own workpool MaxAttempts and is dead-lettered.
func WithDCBRetry(task workpool.Task, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrVersionConflict) {
		return err
	}
	if task.AttemptCount >= MaxDCBRetryAttempts {
		return fmt.Errorf("dcb: giving up after %d attempts on a contended scope: %w", task.AttemptCount, err)
	}
	return err
}
