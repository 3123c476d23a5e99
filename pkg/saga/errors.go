package saga

import "errors"

// ErrAlreadyRunning means a saga instance with this (sagaType, sagaId)
// already exists — sagas are at-most-one per business key.
var ErrAlreadyRunning = errors.New("saga: instance already exists for this business key")
