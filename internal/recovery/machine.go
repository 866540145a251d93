package recovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"guardian-recovery/internal/model"
)

type Config struct {
	Owner          common.Address
	Signer         common.Address
	RequiredWeight uint64
	Delay          time.Duration
}

func (c Config) validate() error {
	if c.Owner == (common.Address{}) {
		return zeroIdentity("owner")
	}
	if c.Signer == (common.Address{}) {
		return zeroIdentity("signer")
	}
	if c.RequiredWeight == 0 || c.RequiredWeight > MaxWeight {
		return fmt.Errorf("%w: required weight must be between 1 and %d", model.ErrValidation, MaxWeight)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%w: recovery delay must not be negative", model.ErrValidation)
	}
	if c.Delay%time.Millisecond != 0 {
		return fmt.Errorf("%w: recovery delay must be a whole number of milliseconds", model.ErrValidation)
	}
	return nil
}

type request struct {
	target         common.Address
	initiatedAt    time.Time
	executed       bool
	approvalWeight uint64
	approvers      map[common.Address]struct{}
}

func (r request) pending() bool {
	return r.target != (common.Address{}) && !r.executed
}

// Machine is the recovery orchestrator. It is not safe for concurrent use.
type Machine struct {
	owner    common.Address
	signer   common.Address
	registry *Registry
	policy   ThresholdPolicy
	gate     TimelockGate
	request  request
	entered  bool
	events   []Event
}

func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("new recovery machine: %w", err)
	}

	return &Machine{
		owner:    cfg.Owner,
		signer:   cfg.Signer,
		registry: NewRegistry(),
		policy:   NewThresholdPolicy(cfg.RequiredWeight),
		gate:     NewTimelockGate(cfg.Delay),
	}, nil
}

// enter marks a mutating entry point as running. Nested entry fails.
func (m *Machine) enter() error {
	if m.entered {
		return model.ErrReentrantCall
	}
	m.entered = true
	return nil
}

func (m *Machine) leave() {
	m.entered = false
}

func (m *Machine) emit(e Event) {
	m.events = append(m.events, e)
}

// DrainEvents returns the events buffered since the last drain.
func (m *Machine) DrainEvents() []Event {
	out := m.events
	m.events = nil
	return out
}

func (m *Machine) AddGuardian(caller common.Address, identity common.Address, weight uint64, now time.Time) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	if caller != m.owner {
		return fmt.Errorf("add guardian: %w", model.ErrNotOwner)
	}
	if err := m.registry.Add(identity, weight, now); err != nil {
		return err
	}

	m.emit(Event{
		Kind:        EventGuardianAdded,
		Actor:       caller,
		Guardian:    identity,
		Weight:      weight,
		TotalWeight: m.registry.TotalWeight(),
		At:          now,
	})
	return nil
}

func (m *Machine) RemoveGuardian(caller common.Address, identity common.Address, now time.Time) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	if caller != m.owner {
		return fmt.Errorf("remove guardian: %w", model.ErrNotOwner)
	}
	weight, err := m.registry.Remove(identity)
	if err != nil {
		return err
	}

	// Weight this guardian already contributed to a pending request stays counted.
	m.emit(Event{
		Kind:        EventGuardianRemoved,
		Actor:       caller,
		Guardian:    identity,
		Weight:      weight,
		TotalWeight: m.registry.TotalWeight(),
		At:          now,
	})
	return nil
}

func (m *Machine) UpdateGuardianWeight(caller common.Address, identity common.Address, weight uint64, now time.Time) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	if caller != m.owner {
		return fmt.Errorf("update guardian weight: %w", model.ErrNotOwner)
	}
	previous, err := m.registry.UpdateWeight(identity, weight, now)
	if err != nil {
		return err
	}

	m.emit(Event{
		Kind:           EventGuardianWeightUpdated,
		Actor:          caller,
		Guardian:       identity,
		Weight:         weight,
		PreviousWeight: previous,
		TotalWeight:    m.registry.TotalWeight(),
		At:             now,
	})
	return nil
}

func (m *Machine) InitiateRecovery(caller common.Address, newSigner common.Address, now time.Time) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	if !m.registry.IsActive(caller) {
		return fmt.Errorf("initiate recovery: %w", model.ErrNotGuardian)
	}
	if m.request.pending() {
		return fmt.Errorf("initiate recovery: %w", model.ErrRecoveryPending)
	}
	if newSigner == (common.Address{}) {
		return zeroIdentity("initiate recovery")
	}
	if newSigner == m.signer {
		return fmt.Errorf("initiate recovery: %w", model.ErrSameSigner)
	}

	m.request = request{
		target:      newSigner,
		initiatedAt: now,
		approvers:   map[common.Address]struct{}{},
	}

	m.emit(Event{
		Kind:   EventRecoveryInitiated,
		Actor:  caller,
		Target: newSigner,
		At:     now,
	})
	return nil
}

// ApproveRecovery credits the caller's current weight to the pending request.
// When the threshold is met the signer is replaced within the same call and
// the returned bool is true.
func (m *Machine) ApproveRecovery(caller common.Address, newSigner common.Address, now time.Time) (bool, error) {
	if err := m.enter(); err != nil {
		return false, err
	}
	defer m.leave()

	weight, ok := m.registry.WeightOf(caller)
	if !ok {
		return false, fmt.Errorf("approve recovery: %w", model.ErrNotGuardian)
	}
	if !m.request.pending() {
		if m.request.executed {
			return false, fmt.Errorf("approve recovery: %w", model.ErrAlreadyExecuted)
		}
		return false, fmt.Errorf("approve recovery: %w", model.ErrNoRecoveryPending)
	}
	if newSigner != m.request.target {
		return false, fmt.Errorf("approve recovery: %w", model.ErrTargetMismatch)
	}
	if _, done := m.request.approvers[caller]; done {
		return false, fmt.Errorf("approve recovery: %w", model.ErrAlreadyApproved)
	}
	if !m.gate.Open(now, m.request.initiatedAt) {
		return false, fmt.Errorf("approve recovery: %w (opens at %s)",
			model.ErrDelayNotElapsed, m.gate.OpensAt(m.request.initiatedAt).UTC().Format(time.RFC3339))
	}
	if weight > MaxWeight-m.request.approvalWeight {
		return false, fmt.Errorf("approve recovery: %w", model.ErrInvalidWeight)
	}
	accumulated := m.request.approvalWeight + weight

	m.request.approvers[caller] = struct{}{}
	m.request.approvalWeight = accumulated
	m.emit(Event{
		Kind:              EventRecoveryApproved,
		Actor:             caller,
		Guardian:          caller,
		Target:            m.request.target,
		Weight:            weight,
		AccumulatedWeight: accumulated,
		At:                now,
	})

	if !m.policy.Met(accumulated) {
		return false, nil
	}

	previous := m.signer
	m.signer = m.request.target
	m.request.executed = true
	m.emit(Event{
		Kind:              EventRecoveryExecuted,
		Actor:             caller,
		Target:            m.signer,
		PreviousSigner:    previous,
		AccumulatedWeight: accumulated,
		At:                now,
	})
	return true, nil
}

func (m *Machine) CancelRecovery(caller common.Address, now time.Time) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	if caller != m.owner {
		return fmt.Errorf("cancel recovery: %w", model.ErrNotOwner)
	}
	if !m.request.pending() {
		return fmt.Errorf("cancel recovery: %w", model.ErrNoRecoveryPending)
	}

	cancelled := m.request
	m.request = request{}
	m.emit(Event{
		Kind:              EventRecoveryCancelled,
		Actor:             caller,
		Target:            cancelled.target,
		AccumulatedWeight: cancelled.approvalWeight,
		At:                now,
	})
	return nil
}

func (m *Machine) Phase() model.RecoveryPhase {
	switch {
	case m.request.pending():
		return model.PhasePending
	case m.request.executed:
		return model.PhaseExecuted
	default:
		return model.PhaseIdle
	}
}

func (m *Machine) Status() model.RecoveryStatus {
	status := model.RecoveryStatus{
		Target:            m.request.target,
		InitiatedAt:       m.request.initiatedAt,
		Executed:          m.request.executed,
		AccumulatedWeight: m.request.approvalWeight,
		Pending:           m.request.pending(),
		Approvals:         len(m.request.approvers),
	}
	if status.Pending {
		status.ApprovableAt = m.gate.OpensAt(m.request.initiatedAt)
	}
	return status
}

func (m *Machine) Overview() model.RecoveryOverview {
	return model.RecoveryOverview{
		RecoveryStatus: m.Status(),
		Phase:          m.Phase(),
		Signer:         m.signer,
		Owner:          m.owner,
		RequiredWeight: m.policy.Required(),
		TotalWeight:    m.registry.TotalWeight(),
		DelaySeconds:   int64(m.gate.Delay() / time.Second),
	}
}

// DelayRemaining is the time left before approvals are accepted, zero when
// no request is pending or the gate is already open.
func (m *Machine) DelayRemaining(now time.Time) time.Duration {
	if !m.request.pending() {
		return 0
	}
	return m.gate.Remaining(now, m.request.initiatedAt)
}

// HasApproved reports whether identity approved the current request instance.
func (m *Machine) HasApproved(identity common.Address) bool {
	if m.request.approvers == nil {
		return false
	}
	_, ok := m.request.approvers[identity]
	return ok
}

func (m *Machine) Guardians() []common.Address {
	return m.registry.List()
}

func (m *Machine) GuardianInfo(identity common.Address) model.GuardianInfo {
	return m.registry.Info(identity)
}

func (m *Machine) IsGuardian(identity common.Address) bool {
	return m.registry.IsActive(identity)
}

func (m *Machine) TotalWeight() uint64 {
	return m.registry.TotalWeight()
}

func (m *Machine) Signer() common.Address {
	return m.signer
}

func (m *Machine) Owner() common.Address {
	return m.owner
}

func (m *Machine) RequiredWeight() uint64 {
	return m.policy.Required()
}

func (m *Machine) Delay() time.Duration {
	return m.gate.Delay()
}

// IsDomainError reports whether err belongs to the recovery error taxonomy.
func IsDomainError(err error) bool {
	return model.Kind(err) != "" || errors.Is(err, ErrCorruptState)
}
