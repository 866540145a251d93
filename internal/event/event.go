package event

type Type string

const (
	TypeGuardianAdded         Type = "guardian.added"
	TypeGuardianRemoved       Type = "guardian.removed"
	TypeGuardianWeightUpdated Type = "guardian.weight_updated"
	TypeRecoveryInitiated     Type = "recovery.initiated"
	TypeRecoveryApproved      Type = "recovery.approved"
	TypeRecoveryExecuted      Type = "recovery.executed"
	TypeRecoveryCancelled     Type = "recovery.cancelled"
	TypeApprovalRevoked       Type = "approval.revoked"
	TypeApprovalBatchRevoked  Type = "approval.batch_revoked"
	TypeApprovalEmergency     Type = "approval.emergency"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"` // Account that triggered the event
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
