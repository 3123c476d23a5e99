package procmgr

import "errors"

// ErrNoInstanceID means a Definition's InstanceIDFromPayload could not
// derive an instance id for an incoming event.
var ErrNoInstanceID = errors.New("procmgr: could not derive instance id")
