package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RecoveryPhase is the state of the recovery slot.
type RecoveryPhase string

const (
	PhaseIdle     RecoveryPhase = "idle"
	PhasePending  RecoveryPhase = "pending"
	PhaseExecuted RecoveryPhase = "executed"
)

// RecoveryStatus is the read-only snapshot returned by getRecoveryStatus.
type RecoveryStatus struct {
	Target            common.Address `json:"target"`
	InitiatedAt       time.Time      `json:"initiated_at"`
	Executed          bool           `json:"executed"`
	AccumulatedWeight uint64         `json:"accumulated_weight"`
	Pending           bool           `json:"pending"`
	ApprovableAt      time.Time      `json:"approvable_at,omitempty"`
	Approvals         int            `json:"approvals"`
}

// RecoveryOverview extends the status with the slot configuration.
type RecoveryOverview struct {
	RecoveryStatus
	Phase          RecoveryPhase  `json:"phase"`
	Signer         common.Address `json:"signer"`
	Owner          common.Address `json:"owner"`
	RequiredWeight uint64         `json:"required_weight"`
	TotalWeight    uint64         `json:"total_weight"`
	DelaySeconds   int64          `json:"delay_seconds"`
	// RemainingSeconds counts down to ApprovableAt while a request is pending.
	RemainingSeconds int64 `json:"remaining_seconds"`
}

type ApprovalOutcome struct {
	Guardian          common.Address `json:"guardian"`
	Target            common.Address `json:"target"`
	AccumulatedWeight uint64         `json:"accumulated_weight"`
	Executed          bool           `json:"executed"`
	Signer            common.Address `json:"signer"`
}
