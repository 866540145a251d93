package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"guardian-recovery/internal/event"
	"guardian-recovery/internal/metrics"
	"guardian-recovery/internal/model"
	"guardian-recovery/internal/recovery"
)

// StateStore persists the whole recovery state as one unit.
type StateStore interface {
	Load(ctx context.Context) (recovery.State, bool, error)
	Save(ctx context.Context, s recovery.State) error
}

type GuardianSeed struct {
	Identity common.Address
	Weight   uint64
}

type RecoveryOptions struct {
	// Bootstrap configures a fresh state when the store is empty.
	Bootstrap        recovery.Config
	InitialGuardians []GuardianSeed
	Bus              event.Bus
	Audit            *AuditService
	Metrics          *metrics.Recorder
	Now              func() time.Time
}

// RecoveryService runs every machine operation as one unit: the state is
// snapshotted, the operation applied and persisted, and on any failure the
// snapshot is restored. Events are published only after a successful save.
type RecoveryService struct {
	mu      sync.Mutex
	machine *recovery.Machine
	store   StateStore
	bus     event.Bus
	audit   *AuditService
	metrics *metrics.Recorder
	now     func() time.Time
}

func NewRecoveryService(ctx context.Context, store StateStore, opts RecoveryOptions) (*RecoveryService, error) {
	if store == nil {
		return nil, errors.New("recovery service requires a state store")
	}

	s := &RecoveryService{
		store:   store,
		bus:     opts.Bus,
		audit:   opts.Audit,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	state, ok, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load recovery state: %w", err)
	}

	if ok {
		machine, err := recovery.FromState(state)
		if err != nil {
			return nil, fmt.Errorf("restore recovery state: %w", err)
		}
		s.machine = machine
		warnOnConfigDrift(state, opts.Bootstrap)
		slog.Info("recovery state loaded",
			"signer", state.Signer.Hex(),
			"guardians", len(state.Order),
			"total_weight", state.TotalWeight,
			"pending", state.Request.Pending(),
		)
	} else {
		if err := s.bootstrap(ctx, opts.Bootstrap, opts.InitialGuardians); err != nil {
			return nil, err
		}
	}

	s.recordGauges()
	return s, nil
}

func (s *RecoveryService) bootstrap(ctx context.Context, cfg recovery.Config, seeds []GuardianSeed) error {
	machine, err := recovery.NewMachine(cfg)
	if err != nil {
		return err
	}

	now := s.now()
	for _, seed := range seeds {
		if err := machine.AddGuardian(cfg.Owner, seed.Identity, seed.Weight, now); err != nil {
			return fmt.Errorf("seed guardian %s: %w", seed.Identity.Hex(), err)
		}
	}

	if err := s.store.Save(ctx, machine.Snapshot()); err != nil {
		return fmt.Errorf("persist initial recovery state: %w", err)
	}

	s.machine = machine
	s.publish(machine.DrainEvents())
	slog.Info("recovery state initialized",
		"owner", cfg.Owner.Hex(),
		"signer", cfg.Signer.Hex(),
		"required_weight", cfg.RequiredWeight,
		"delay", cfg.Delay.String(),
		"guardians", len(seeds),
	)
	return nil
}

func warnOnConfigDrift(state recovery.State, cfg recovery.Config) {
	if cfg.Owner != (common.Address{}) && cfg.Owner != state.Owner {
		slog.Warn("configured owner differs from persisted owner; using persisted", "configured", cfg.Owner.Hex(), "persisted", state.Owner.Hex())
	}
	if cfg.RequiredWeight != 0 && cfg.RequiredWeight != state.RequiredWeight {
		slog.Warn("configured required weight differs from persisted; using persisted", "configured", cfg.RequiredWeight, "persisted", state.RequiredWeight)
	}
	if cfg.Delay != 0 && cfg.Delay != state.Delay {
		slog.Warn("configured recovery delay differs from persisted; using persisted", "configured", cfg.Delay.String(), "persisted", state.Delay.String())
	}
}

type machineOp func(m *recovery.Machine, caller common.Address, now time.Time) error

func (s *RecoveryService) mutate(ctx context.Context, action string, actor model.AuditActor, resource string, op machineOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.machine.Overview()
	snapshot := s.machine.Snapshot()

	err := s.apply(ctx, actor, op)
	if err != nil {
		if restoreErr := s.machine.Restore(snapshot); restoreErr != nil {
			slog.Error("recovery state rollback failed", "action", action, "error", restoreErr)
		}
		s.metrics.ObserveOperation(action, err)

		status := auditStatusFailed
		if recovery.IsDomainError(err) {
			status = auditStatusRejected
			slog.Warn("recovery operation rejected", "action", action, "actor", actor.Address, "kind", model.Kind(err), "error", err)
		} else {
			slog.Error("recovery operation failed", "action", action, "actor", actor.Address, "error", err)
		}
		s.audit.Log(action, actor, status, resource, nil, nil, err.Error())
		return err
	}

	events := s.machine.DrainEvents()
	s.metrics.ObserveOperation(action, nil)
	s.recordGauges()
	s.audit.Log(action, actor, auditStatusSuccess, resource, before, s.machine.Overview(), "")
	s.publish(events)
	return nil
}

func (s *RecoveryService) apply(ctx context.Context, actor model.AuditActor, op machineOp) error {
	caller, err := model.ParseAddress(actor.Address)
	if err != nil {
		return fmt.Errorf("%w: unknown caller", model.ErrAuthorization)
	}
	if err := op(s.machine, caller, s.now()); err != nil {
		return err
	}
	if err := s.store.Save(ctx, s.machine.Snapshot()); err != nil {
		return fmt.Errorf("persist recovery state: %w", err)
	}
	return nil
}

func (s *RecoveryService) publish(events []recovery.Event) {
	if s.bus == nil {
		return
	}
	for _, e := range events {
		s.bus.Publish(event.New(event.Type(e.Kind), e.Actor.Hex(), e, e.At))
	}
}

func (s *RecoveryService) recordGauges() {
	status := s.machine.Status()
	s.metrics.SetRecoveryState(s.machine.TotalWeight(), status.AccumulatedWeight, status.Pending)
}

func (s *RecoveryService) AddGuardian(ctx context.Context, actor model.AuditActor, identity common.Address, weight uint64) (model.GuardianInfo, error) {
	var info model.GuardianInfo
	err := s.mutate(ctx, "guardian.add", actor, identity.Hex(), func(m *recovery.Machine, caller common.Address, now time.Time) error {
		if err := m.AddGuardian(caller, identity, weight, now); err != nil {
			return err
		}
		info = m.GuardianInfo(identity)
		return nil
	})
	return info, err
}

func (s *RecoveryService) RemoveGuardian(ctx context.Context, actor model.AuditActor, identity common.Address) (model.GuardianInfo, error) {
	var info model.GuardianInfo
	err := s.mutate(ctx, "guardian.remove", actor, identity.Hex(), func(m *recovery.Machine, caller common.Address, now time.Time) error {
		if err := m.RemoveGuardian(caller, identity, now); err != nil {
			return err
		}
		info = m.GuardianInfo(identity)
		return nil
	})
	return info, err
}

func (s *RecoveryService) UpdateGuardianWeight(ctx context.Context, actor model.AuditActor, identity common.Address, weight uint64) (model.GuardianInfo, error) {
	var info model.GuardianInfo
	err := s.mutate(ctx, "guardian.update_weight", actor, identity.Hex(), func(m *recovery.Machine, caller common.Address, now time.Time) error {
		if err := m.UpdateGuardianWeight(caller, identity, weight, now); err != nil {
			return err
		}
		info = m.GuardianInfo(identity)
		return nil
	})
	return info, err
}

func (s *RecoveryService) InitiateRecovery(ctx context.Context, actor model.AuditActor, newSigner common.Address) (model.RecoveryStatus, error) {
	var status model.RecoveryStatus
	err := s.mutate(ctx, "recovery.initiate", actor, newSigner.Hex(), func(m *recovery.Machine, caller common.Address, now time.Time) error {
		if err := m.InitiateRecovery(caller, newSigner, now); err != nil {
			return err
		}
		status = m.Status()
		return nil
	})
	return status, err
}

func (s *RecoveryService) ApproveRecovery(ctx context.Context, actor model.AuditActor, newSigner common.Address) (model.ApprovalOutcome, error) {
	var outcome model.ApprovalOutcome
	err := s.mutate(ctx, "recovery.approve", actor, newSigner.Hex(), func(m *recovery.Machine, caller common.Address, now time.Time) error {
		executed, err := m.ApproveRecovery(caller, newSigner, now)
		if err != nil {
			return err
		}
		outcome = model.ApprovalOutcome{
			Guardian:          caller,
			Target:            newSigner,
			AccumulatedWeight: m.Status().AccumulatedWeight,
			Executed:          executed,
			Signer:            m.Signer(),
		}
		return nil
	})
	return outcome, err
}

func (s *RecoveryService) CancelRecovery(ctx context.Context, actor model.AuditActor) (model.RecoveryStatus, error) {
	var status model.RecoveryStatus
	err := s.mutate(ctx, "recovery.cancel", actor, "", func(m *recovery.Machine, caller common.Address, now time.Time) error {
		if err := m.CancelRecovery(caller, now); err != nil {
			return err
		}
		status = m.Status()
		return nil
	})
	return status, err
}

func (s *RecoveryService) Status() model.RecoveryOverview {
	s.mu.Lock()
	defer s.mu.Unlock()

	overview := s.machine.Overview()
	overview.RemainingSeconds = ceilSeconds(s.machine.DelayRemaining(s.now()))
	return overview
}

func ceilSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}

func (s *RecoveryService) HasApproved(identity common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.HasApproved(identity)
}

func (s *RecoveryService) ListGuardians() model.GuardianListData {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.machine.Guardians()
	data := model.GuardianListData{
		Guardians:   make([]model.GuardianInfo, 0, len(ids)),
		TotalWeight: s.machine.TotalWeight(),
	}
	for _, id := range ids {
		data.Guardians = append(data.Guardians, s.machine.GuardianInfo(id))
	}
	return data
}

func (s *RecoveryService) GuardianInfo(identity common.Address) model.GuardianInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.GuardianInfo(identity)
}

func (s *RecoveryService) IsOwner(identity common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return identity == s.machine.Owner()
}
