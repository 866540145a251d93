package recovery

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	EventGuardianAdded         EventKind = "guardian.added"
	EventGuardianRemoved       EventKind = "guardian.removed"
	EventGuardianWeightUpdated EventKind = "guardian.weight_updated"
	EventRecoveryInitiated     EventKind = "recovery.initiated"
	EventRecoveryApproved      EventKind = "recovery.approved"
	EventRecoveryExecuted      EventKind = "recovery.executed"
	EventRecoveryCancelled     EventKind = "recovery.cancelled"
)

// Event records one observable effect of a successful operation. Fields that
// do not apply to a kind are left zero.
type Event struct {
	Kind              EventKind      `json:"kind"`
	Actor             common.Address `json:"actor"`
	Guardian          common.Address `json:"guardian,omitempty"`
	Target            common.Address `json:"target,omitempty"`
	PreviousSigner    common.Address `json:"previous_signer,omitempty"`
	Weight            uint64         `json:"weight"`
	PreviousWeight    uint64         `json:"previous_weight"`
	AccumulatedWeight uint64         `json:"accumulated_weight"`
	TotalWeight       uint64         `json:"total_weight"`
	At                time.Time      `json:"at"`
}
