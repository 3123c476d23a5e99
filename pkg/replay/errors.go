package replay

import "errors"

var (
	// ErrReplayAlreadyActive means TriggerRebuild was called for a
	// projection that already has a running replay.
	ErrReplayAlreadyActive = errors.New("replay: REPLAY_ALREADY_ACTIVE")

	// ErrReplayNotFound means a replayId does not exist.
	ErrReplayNotFound = errors.New("replay: not found")
)
