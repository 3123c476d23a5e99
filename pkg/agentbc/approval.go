package agentbc

import "github.com/coreflow/runtime/pkg/fsm"

// ApprovalStatus is one of pending_approvals.status.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalEvent is the driver for the approval FSM; expiry is computed
// lazily from expiresAt or forced by an admin sweep, both represented as
// the same EventExpire transition.
type ApprovalEvent string

const (
	EventApprove ApprovalEvent = "APPROVE"
	EventReject  ApprovalEvent = "REJECT"
	EventExpire  ApprovalEvent = "EXPIRE"
)

// ApprovalFSM allows exactly pending -> {approved, rejected, expired};
// every other (state, event) pair is invalid, matching "transitions from
// non-pending throw".
var ApprovalFSM = fsm.EventDefinition[ApprovalStatus, ApprovalEvent]{
	Initial: ApprovalPending,
	Transitions: map[ApprovalStatus]map[ApprovalEvent]ApprovalStatus{
		ApprovalPending: {
			EventApprove: ApprovalApproved,
			EventReject:  ApprovalRejected,
			EventExpire:  ApprovalExpired,
		},
	},
}
