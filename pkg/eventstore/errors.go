package eventstore

import "errors"

var (
	// ErrStreamNotFound names a stream with no events. ReadStream does not
	// return it: a stream with no events reads as an empty slice.
	ErrStreamNotFound = errors.New("eventstore: stream not found")

	// ErrEventNotFound indicates a single-event lookup (by idempotency key or
	// by global position) found nothing. GetByCorrelation returns an empty
	// slice instead.
	ErrEventNotFound = errors.New("eventstore: event not found")

	// ErrEmptyAppend indicates AppendToStream was called with zero events.
	ErrEmptyAppend = errors.New("eventstore: append requires at least one event")
)
