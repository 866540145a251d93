package recovery

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian-recovery/internal/model"
)

func TestNewMachineValidatesConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero owner", Config{Signer: signer, RequiredWeight: 1}},
		{"zero signer", Config{Owner: owner, RequiredWeight: 1}},
		{"zero threshold", Config{Owner: owner, Signer: signer}},
		{"negative delay", Config{Owner: owner, Signer: signer, RequiredWeight: 1, Delay: -time.Second}},
		{"sub-millisecond delay", Config{Owner: owner, Signer: signer, RequiredWeight: 1, Delay: time.Second + time.Microsecond}},
		{"threshold beyond storable range", Config{Owner: owner, Signer: signer, RequiredWeight: MaxWeight + 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMachine(tc.cfg)
			require.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestRegistryOperationsRequireOwner(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)

	require.ErrorIs(t, m.AddGuardian(g1, g3, 1, t0), model.ErrAuthorization)
	require.ErrorIs(t, m.RemoveGuardian(g2, g1, t0), model.ErrAuthorization)
	require.ErrorIs(t, m.UpdateGuardianWeight(stranger, g1, 9, t0), model.ErrAuthorization)
	require.Equal(t, uint64(3), m.TotalWeight())
	require.Empty(t, m.DrainEvents())
}

func TestRecoveryExecutesOnCrossingApproval(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)

	require.NoError(t, m.InitiateRecovery(g1, newSigner, t0))
	status := m.Status()
	require.True(t, status.Pending)
	require.Equal(t, newSigner, status.Target)
	require.Equal(t, t0.Add(delay), status.ApprovableAt)

	executed, err := m.ApproveRecovery(g2, newSigner, t0.Add(delay))
	require.NoError(t, err)
	require.True(t, executed)

	require.Equal(t, newSigner, m.Signer())
	status = m.Status()
	require.True(t, status.Executed)
	require.False(t, status.Pending)
	require.Equal(t, uint64(2), status.AccumulatedWeight)
	require.Equal(t, model.PhaseExecuted, m.Phase())

	events := m.DrainEvents()
	require.Len(t, events, 3)
	assert.Equal(t, EventRecoveryInitiated, events[0].Kind)
	assert.Equal(t, EventRecoveryApproved, events[1].Kind)
	assert.Equal(t, EventRecoveryExecuted, events[2].Kind)
	assert.Equal(t, signer, events[2].PreviousSigner)
	assert.Equal(t, newSigner, events[2].Target)

	_, err = m.ApproveRecovery(g1, newSigner, t0.Add(delay))
	require.ErrorIs(t, err, model.ErrAlreadyExecuted)
	require.ErrorIs(t, err, model.ErrState)
}

func TestRecoveryTimelockThenCancel(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	require.NoError(t, m.InitiateRecovery(g1, newSigner, t0))

	_, err := m.ApproveRecovery(g1, newSigner, t0.Add(delay-time.Second))
	require.ErrorIs(t, err, model.ErrTimelock)
	require.Zero(t, m.Status().AccumulatedWeight)
	require.False(t, m.HasApproved(g1))

	executed, err := m.ApproveRecovery(g1, newSigner, t0.Add(delay))
	require.NoError(t, err)
	require.False(t, executed)
	status := m.Status()
	require.Equal(t, uint64(1), status.AccumulatedWeight)
	require.True(t, status.Pending)
	require.Equal(t, signer, m.Signer())
	require.True(t, m.HasApproved(g1))

	require.ErrorIs(t, m.CancelRecovery(g2, t0), model.ErrAuthorization)
	require.NoError(t, m.CancelRecovery(owner, t0.Add(delay+time.Minute)))

	status = m.Status()
	require.False(t, status.Pending)
	require.False(t, status.Executed)
	require.Equal(t, common.Address{}, status.Target)
	require.False(t, m.HasApproved(g1))
	require.Equal(t, signer, m.Signer())

	require.ErrorIs(t, m.CancelRecovery(owner, t0), model.ErrNoRecoveryPending)
}

func TestInitiateRecoveryPreconditions(t *testing.T) {
	t.Parallel()

	t.Run("caller must be an active guardian", func(t *testing.T) {
		m := newTestMachine(t)
		require.ErrorIs(t, m.InitiateRecovery(stranger, newSigner, t0), model.ErrAuthorization)
		require.ErrorIs(t, m.InitiateRecovery(owner, newSigner, t0), model.ErrNotGuardian)
	})

	t.Run("target must be non-zero and differ from signer", func(t *testing.T) {
		m := newTestMachine(t)
		require.ErrorIs(t, m.InitiateRecovery(g1, common.Address{}, t0), model.ErrValidation)
		require.ErrorIs(t, m.InitiateRecovery(g1, signer, t0), model.ErrSameSigner)
		require.False(t, m.Status().Pending)
	})

	t.Run("second initiate fails without touching the request", func(t *testing.T) {
		m := newTestMachine(t)
		require.NoError(t, m.InitiateRecovery(g1, newSigner, t0))
		before := m.Snapshot()

		other := common.HexToAddress("0x00000000000000000000000000000000000000b3")
		err := m.InitiateRecovery(g2, other, t0.Add(time.Hour))
		require.ErrorIs(t, err, model.ErrRecoveryPending)
		require.ErrorIs(t, err, model.ErrState)
		require.Equal(t, before, m.Snapshot())
	})
}

func TestApproveRecoveryPreconditions(t *testing.T) {
	t.Parallel()

	t.Run("nothing pending", func(t *testing.T) {
		m := newTestMachine(t)
		_, err := m.ApproveRecovery(g1, newSigner, t0)
		require.ErrorIs(t, err, model.ErrNoRecoveryPending)
	})

	t.Run("target mismatch", func(t *testing.T) {
		m := newTestMachine(t)
		require.NoError(t, m.InitiateRecovery(g1, newSigner, t0))
		_, err := m.ApproveRecovery(g2, stranger, t0.Add(delay))
		require.ErrorIs(t, err, model.ErrTargetMismatch)
		require.Zero(t, m.Status().AccumulatedWeight)
	})

	t.Run("duplicate approval", func(t *testing.T) {
		m := newTestMachine(t)
		require.NoError(t, m.InitiateRecovery(g1, newSigner, t0))
		_, err := m.ApproveRecovery(g1, newSigner, t0.Add(delay))
		require.NoError(t, err)

		_, err = m.ApproveRecovery(g1, newSigner, t0.Add(delay+time.Hour))
		require.ErrorIs(t, err, model.ErrAlreadyApproved)
		require.ErrorIs(t, err, model.ErrState)
		require.Equal(t, uint64(1), m.Status().AccumulatedWeight)
	})

	t.Run("non guardian", func(t *testing.T) {
		m := newTestMachine(t)
		require.NoError(t, m.InitiateRecovery(g1, newSigner, t0))
		_, err := m.ApproveRecovery(stranger, newSigner, t0.Add(delay))
		require.ErrorIs(t, err, model.ErrAuthorization)
	})
}

func TestCancelThenReinitiateStartsClean(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	require.NoError(t, m.InitiateRecovery(g1, newSigner, t0))
	_, err := m.ApproveRecovery(g1, newSigner, t0.Add(delay))
	require.NoError(t, err)
	require.NoError(t, m.CancelRecovery(owner, t0.Add(delay)))

	other := common.HexToAddress("0x00000000000000000000000000000000000000b3")
	later := t0.Add(3 * delay)
	require.NoError(t, m.InitiateRecovery(g2, other, later))

	status := m.Status()
	require.True(t, status.Pending)
	require.Equal(t, other, status.Target)
	require.Equal(t, later, status.InitiatedAt)
	require.Zero(t, status.AccumulatedWeight)
	require.Zero(t, status.Approvals)
	require.False(t, m.HasApproved(g1))

	// The new instance has its own delay window.
	_, err = m.ApproveRecovery(g1, other, later.Add(time.Minute))
	require.ErrorIs(t, err, model.ErrTimelock)
}

func TestRemovedApproverWeightStillCounts(t *testing.T) {
	t.Parallel()

	m, err := NewMachine(Config{Owner: owner, Signer: signer, RequiredWeight: 3, Delay: delay})
	require.NoError(t, err)
	require.NoError(t, m.AddGuardian(owner, g1, 2, t0))
	require.NoError(t, m.AddGuardian(owner, g2, 1, t0))

	require.NoError(t, m.InitiateRecovery(g1, newSigner, t0))
	_, err = m.ApproveRecovery(g1, newSigner, t0.Add(delay))
	require.NoError(t, err)

	require.NoError(t, m.RemoveGuardian(owner, g1, t0.Add(delay)))
	require.Equal(t, uint64(2), m.Status().AccumulatedWeight)
	require.Equal(t, uint64(1), m.TotalWeight())

	executed, err := m.ApproveRecovery(g2, newSigner, t0.Add(delay))
	require.NoError(t, err)
	require.True(t, executed)
	require.Equal(t, newSigner, m.Signer())
}

func TestWeightUpdateDoesNotRewriteAccumulatedWeight(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	require.NoError(t, m.InitiateRecovery(g1, newSigner, t0))
	_, err := m.ApproveRecovery(g1, newSigner, t0.Add(delay))
	require.NoError(t, err)

	require.NoError(t, m.UpdateGuardianWeight(owner, g1, 0, t0.Add(delay)))
	require.Equal(t, uint64(1), m.Status().AccumulatedWeight)
	require.Equal(t, uint64(2), m.TotalWeight())
	require.Equal(t, sumActive(m), m.TotalWeight())
}

func TestApprovalUsesLiveWeight(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	require.NoError(t, m.InitiateRecovery(g2, newSigner, t0))
	require.NoError(t, m.UpdateGuardianWeight(owner, g1, 5, t0))

	executed, err := m.ApproveRecovery(g1, newSigner, t0.Add(delay))
	require.NoError(t, err)
	require.True(t, executed)
	require.Equal(t, uint64(5), m.Status().AccumulatedWeight)
}

func TestReentrantEntryIsRejected(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)
	require.NoError(t, m.enter())

	require.ErrorIs(t, m.InitiateRecovery(g1, newSigner, t0), model.ErrReentrantCall)
	require.ErrorIs(t, m.AddGuardian(owner, g3, 1, t0), model.ErrReentrantCall)
	_, err := m.ApproveRecovery(g1, newSigner, t0)
	require.ErrorIs(t, err, model.ErrReentrantCall)

	m.leave()
	require.NoError(t, m.InitiateRecovery(g1, newSigner, t0))
}
