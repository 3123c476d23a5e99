package workpool

import "errors"

var (
	// ErrNoTaskAvailable indicates a worker found nothing eligible to claim.
	ErrNoTaskAvailable = errors.New("workpool: no task available")

	// ErrUnknownTarget indicates a task's TargetRef has no registered Handler.
	ErrUnknownTarget = errors.New("workpool: unknown target ref")

	// ErrPartitionLeaseHeld indicates a candidate task's partition is
	// currently leased by another worker/process.
	ErrPartitionLeaseHeld = errors.New("workpool: partition lease held")
)
