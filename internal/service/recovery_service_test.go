package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guardian-recovery/internal/database"
	"guardian-recovery/internal/event"
	"guardian-recovery/internal/metrics"
	"guardian-recovery/internal/model"
	"guardian-recovery/internal/recovery"
	"guardian-recovery/internal/repository"
)

type recoveryFixture struct {
	svc   *RecoveryService
	store *repository.MemoryStateRepository
	clock *fakeClock
	audit *AuditService
	bus   *event.InMemoryBus
}

func newRecoveryFixture(t *testing.T) recoveryFixture {
	t.Helper()

	store := repository.NewMemoryStateRepository()
	clock := newFakeClock(start)
	bus := event.NewBus()
	audit := newAudit(t)

	svc, err := NewRecoveryService(context.Background(), store, RecoveryOptions{
		Bootstrap:        bootstrapConfig(),
		InitialGuardians: seedGuardians(),
		Bus:              bus,
		Audit:            audit,
		Metrics:          metrics.New(),
		Now:              clock.Now,
	})
	require.NoError(t, err)

	return recoveryFixture{svc: svc, store: store, clock: clock, audit: audit, bus: bus}
}

func TestRecoveryServiceBootstrapPersistsSeeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRecoveryFixture(t)

	state, ok, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), state.TotalWeight)
	assert.Equal(t, signerAddr, state.Signer)

	list := f.svc.ListGuardians()
	require.Len(t, list.Guardians, 2)
	assert.Equal(t, uint64(3), list.TotalWeight)
	assert.Equal(t, start, list.Guardians[0].LastActive)

	t.Run("reload ignores bootstrap config", func(t *testing.T) {
		cfg := bootstrapConfig()
		cfg.RequiredWeight = 9
		reloaded, err := NewRecoveryService(ctx, f.store, RecoveryOptions{Bootstrap: cfg, Now: f.clock.Now})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), reloaded.Status().RequiredWeight)
		assert.Len(t, reloaded.ListGuardians().Guardians, 2)
	})
}

func TestRecoveryServiceScenarioExecutes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRecoveryFixture(t)

	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	status, err := f.svc.InitiateRecovery(ctx, actorFor(g1Addr), newSignerAddr)
	require.NoError(t, err)
	assert.True(t, status.Pending)
	assert.Equal(t, start.Add(recoveryDelay), status.ApprovableAt)

	f.clock.Advance(recoveryDelay)

	outcome, err := f.svc.ApproveRecovery(ctx, actorFor(g2Addr), newSignerAddr)
	require.NoError(t, err)
	assert.True(t, outcome.Executed)
	assert.Equal(t, newSignerAddr, outcome.Signer)
	assert.Equal(t, uint64(2), outcome.AccumulatedWeight)

	overview := f.svc.Status()
	assert.True(t, overview.Executed)
	assert.False(t, overview.Pending)
	assert.Equal(t, model.PhaseExecuted, overview.Phase)
	assert.True(t, f.svc.HasApproved(g2Addr))
	assert.False(t, f.svc.HasApproved(g1Addr))

	state, _, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, newSignerAddr, state.Signer)
	assert.True(t, state.Request.Executed)

	assert.Equal(t, []event.Type{
		event.TypeRecoveryInitiated,
		event.TypeRecoveryApproved,
		event.TypeRecoveryExecuted,
	}, eventTypes(collect(events)))
}

func TestRecoveryServiceRejectionsDoNotMutate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRecoveryFixture(t)

	_, err := f.svc.InitiateRecovery(ctx, actorFor(g1Addr), newSignerAddr)
	require.NoError(t, err)
	before, _, err := f.store.Load(ctx)
	require.NoError(t, err)

	_, err = f.svc.ApproveRecovery(ctx, actorFor(g1Addr), newSignerAddr)
	require.ErrorIs(t, err, model.ErrTimelock)

	_, err = f.svc.InitiateRecovery(ctx, actorFor(g2Addr), newSignerAddr)
	require.ErrorIs(t, err, model.ErrRecoveryPending)

	_, err = f.svc.AddGuardian(ctx, actorFor(g1Addr), g3Addr, 5)
	require.ErrorIs(t, err, model.ErrNotOwner)

	_, err = f.svc.AddGuardian(ctx, model.AuditActor{Address: "not-an-address"}, g3Addr, 5)
	require.ErrorIs(t, err, model.ErrAuthorization)

	after, _, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(0), f.svc.Status().AccumulatedWeight)

	entries, meta, err := f.audit.Query(model.AuditQuery{Status: auditStatusRejected})
	require.NoError(t, err)
	assert.Equal(t, 4, meta.Total)
	assert.Equal(t, "guardian.add", entries[0].Action)
}

func TestRecoveryServiceRollsBackOnStoreFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := new(MockStateStore)
	store.On("Load", mock.Anything).Return(recovery.State{}, false, nil).Once()
	store.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	svc, err := NewRecoveryService(ctx, store, RecoveryOptions{
		Bootstrap:        bootstrapConfig(),
		InitialGuardians: seedGuardians(),
		Bus:              bus,
		Now:              newFakeClock(start).Now,
	})
	require.NoError(t, err)
	collect(events)

	_, err = svc.AddGuardian(ctx, actorFor(ownerAddr), g3Addr, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, model.Kind(err))

	list := svc.ListGuardians()
	assert.Len(t, list.Guardians, 2)
	assert.Equal(t, uint64(3), list.TotalWeight)
	assert.False(t, svc.GuardianInfo(g3Addr).Active)
	assert.Empty(t, collect(events))
	store.AssertExpectations(t)
}

func TestRecoveryServiceCancelAndReinitiate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRecoveryFixture(t)

	_, err := f.svc.InitiateRecovery(ctx, actorFor(g1Addr), newSignerAddr)
	require.NoError(t, err)
	f.clock.Advance(recoveryDelay)

	outcome, err := f.svc.ApproveRecovery(ctx, actorFor(g1Addr), newSignerAddr)
	require.NoError(t, err)
	assert.False(t, outcome.Executed)
	assert.Equal(t, uint64(1), outcome.AccumulatedWeight)

	_, err = f.svc.CancelRecovery(ctx, actorFor(g1Addr))
	require.ErrorIs(t, err, model.ErrNotOwner)

	status, err := f.svc.CancelRecovery(ctx, actorFor(ownerAddr))
	require.NoError(t, err)
	assert.False(t, status.Pending)

	other := g3Addr
	status, err = f.svc.InitiateRecovery(ctx, actorFor(g2Addr), other)
	require.NoError(t, err)
	assert.Equal(t, other, status.Target)
	assert.Zero(t, status.AccumulatedWeight)
	assert.False(t, f.svc.HasApproved(g1Addr))
}

func TestRecoveryServiceGuardianManagement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRecoveryFixture(t)
	owner := actorFor(ownerAddr)

	info, err := f.svc.AddGuardian(ctx, owner, g3Addr, 4)
	require.NoError(t, err)
	assert.True(t, info.Active)
	assert.Equal(t, uint64(7), f.svc.ListGuardians().TotalWeight)

	f.clock.Advance(recoveryDelay)
	info, err = f.svc.UpdateGuardianWeight(ctx, owner, g3Addr, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Weight)
	assert.Equal(t, start.Add(recoveryDelay), info.LastActive)

	info, err = f.svc.RemoveGuardian(ctx, owner, g1Addr)
	require.NoError(t, err)
	assert.False(t, info.Active)
	assert.Equal(t, uint64(3), f.svc.ListGuardians().TotalWeight)

	_, err = f.svc.RemoveGuardian(ctx, owner, g1Addr)
	require.ErrorIs(t, err, model.ErrGuardianNotFound)

	assert.True(t, f.svc.IsOwner(ownerAddr))
	assert.False(t, f.svc.IsOwner(g2Addr))
}

func TestRecoveryServiceWeightCeilingAcrossStores(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) StateStore{
		"memory": func(t *testing.T) StateStore {
			return repository.NewMemoryStateRepository()
		},
		"sqlite": func(t *testing.T) StateStore {
			db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
			require.NoError(t, err)
			repo := repository.NewSQLiteStateRepository(db)
			t.Cleanup(func() { _ = repo.Close() })
			return repo
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := open(t)

			svc, err := NewRecoveryService(ctx, store, RecoveryOptions{
				Bootstrap:        bootstrapConfig(),
				InitialGuardians: seedGuardians(),
				Now:              newFakeClock(start).Now,
			})
			require.NoError(t, err)

			_, err = svc.AddGuardian(ctx, actorFor(ownerAddr), g3Addr, 1<<63)
			require.ErrorIs(t, err, model.ErrInvalidWeight)
			assert.Equal(t, "ValidationError", model.Kind(err))
			assert.False(t, svc.GuardianInfo(g3Addr).Active)

			info, err := svc.AddGuardian(ctx, actorFor(ownerAddr), g3Addr, recovery.MaxWeight-3)
			require.NoError(t, err)
			assert.Equal(t, recovery.MaxWeight-3, info.Weight)

			state, ok, err := store.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, recovery.MaxWeight, state.TotalWeight)
		})
	}
}

func TestRecoveryServiceStatusCountsDownDelay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newRecoveryFixture(t)

	assert.Zero(t, f.svc.Status().RemainingSeconds)

	_, err := f.svc.InitiateRecovery(ctx, actorFor(g1Addr), newSignerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(recoveryDelay/time.Second), f.svc.Status().RemainingSeconds)

	f.clock.Advance(recoveryDelay - 500*time.Millisecond)
	assert.Equal(t, int64(1), f.svc.Status().RemainingSeconds)

	f.clock.Advance(time.Second)
	status := f.svc.Status()
	assert.Zero(t, status.RemainingSeconds)
	assert.True(t, status.Pending)
}
