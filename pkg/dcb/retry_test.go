package dcb_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreflow/runtime/pkg/dcb"
	"github.com/coreflow/runtime/pkg/workpool"
)

func TestWithDCBRetry_PassesThroughConflictUntilAttemptCap(t *testing.T) {
	task := workpool.Task{AttemptCount: 1}
	err := dcb.WithDCBRetry(task, func() error { return dcb.ErrVersionConflict })
	assert.ErrorIs(t, err, dcb.ErrVersionConflict)

	task.AttemptCount = dcb.MaxDCBRetryAttempts
	err = dcb.WithDCBRetry(task, func() error { return dcb.ErrVersionConflict })
	assert.Error(t, err)
	assert.ErrorIs(t, err, dcb.ErrVersionConflict)
}

func TestWithDCBRetry_NonConflictErrorPassesThroughImmediately(t *testing.T) {
	task := workpool.Task{AttemptCount: 0}
	boom := errors.New("boom")
	err := dcb.WithDCBRetry(task, func() error { return boom })
	assert.ErrorIs(t, err, boom)
}
