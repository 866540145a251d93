package revoke

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guardian-recovery/internal/model"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	holder   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	tokenA   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	tokenB   = common.HexToAddress("0x00000000000000000000000000000000000000c4")
	spenderX = common.HexToAddress("0x00000000000000000000000000000000000000d5")
	spenderY = common.HexToAddress("0x00000000000000000000000000000000000000d6")
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Allowance(ctx context.Context, token common.Address, owner common.Address, spender common.Address) (*big.Int, error) {
	args := m.Called(ctx, token, owner, spender)
	amount, _ := args.Get(0).(*big.Int)
	return amount, args.Error(1)
}

func (m *MockLedger) Approve(ctx context.Context, token common.Address, owner common.Address, spender common.Address, amount *big.Int) error {
	args := m.Called(ctx, token, owner, spender, amount)
	return args.Error(0)
}

// reentrantLedger calls back into the helper from Approve, either with the
// context it was given or with a fresh one.
type reentrantLedger struct {
	*MemoryLedger
	helper   *Helper
	callback func(ctx context.Context, h *Helper, token common.Address, owner common.Address, spender common.Address) error
	fresh    bool
	err      error
}

func (l *reentrantLedger) Approve(ctx context.Context, token common.Address, owner common.Address, spender common.Address, amount *big.Int) error {
	callCtx := ctx
	if l.fresh {
		callCtx = context.Background()
	}
	l.err = l.callback(callCtx, l.helper, token, owner, spender)
	return l.MemoryLedger.Approve(ctx, token, owner, spender, amount)
}

func newHelper(t *testing.T, ledger TokenLedger, opts ...Option) *Helper {
	t.Helper()
	h, err := NewHelper(ledger, owner, opts...)
	require.NoError(t, err)
	return h
}

func TestRevokeApproval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ledger := NewMemoryLedger()
	ledger.SetAllowance(tokenA, holder, spenderX, big.NewInt(500))
	h := newHelper(t, ledger)

	result, err := h.RevokeApproval(ctx, holder, tokenA, spenderX)
	require.NoError(t, err)
	assert.Equal(t, model.RevokeStatusRevoked, result.Status)
	assert.Equal(t, int64(500), result.Previous.Int64())
	assert.True(t, h.IsRevoked(holder, tokenA, spenderX))

	current, err := ledger.Allowance(ctx, tokenA, holder, spenderX)
	require.NoError(t, err)
	assert.Zero(t, current.Sign())

	t.Run("idempotent", func(t *testing.T) {
		again, err := h.RevokeApproval(ctx, holder, tokenA, spenderX)
		require.NoError(t, err)
		assert.Equal(t, model.RevokeStatusAlreadyRevoked, again.Status)
		assert.Zero(t, again.Previous.Sign())
	})

	t.Run("zero addresses rejected", func(t *testing.T) {
		_, err := h.RevokeApproval(ctx, holder, common.Address{}, spenderX)
		require.ErrorIs(t, err, model.ErrValidation)
		_, err = h.RevokeApproval(ctx, holder, tokenA, common.Address{})
		require.ErrorIs(t, err, model.ErrZeroIdentity)
	})

	t.Run("revoked status is per owner", func(t *testing.T) {
		assert.False(t, h.IsRevoked(owner, tokenA, spenderX))
	})
}

func TestBatchRevokeApprovals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ledger := NewMemoryLedger()
	ledger.SetAllowance(tokenA, holder, spenderX, big.NewInt(10))
	ledger.SetAllowance(tokenB, holder, spenderY, big.NewInt(20))
	h := newHelper(t, ledger)

	data, err := h.BatchRevokeApprovals(ctx, holder,
		[]common.Address{tokenA, tokenB, tokenA},
		[]common.Address{spenderX, spenderY, spenderY},
	)
	require.NoError(t, err)
	require.Len(t, data.Results, 3)
	assert.Equal(t, 2, data.Revoked)
	assert.Equal(t, model.RevokeStatusRevoked, data.Results[0].Status)
	assert.Equal(t, model.RevokeStatusRevoked, data.Results[1].Status)
	assert.Equal(t, model.RevokeStatusAlreadyRevoked, data.Results[2].Status)
	assert.Equal(t, int64(20), data.Results[1].Previous.Int64())

	for _, pair := range [][2]common.Address{{tokenA, spenderX}, {tokenB, spenderY}, {tokenA, spenderY}} {
		assert.True(t, h.IsRevoked(holder, pair[0], pair[1]))
	}
}

func TestBatchRevokeValidatesBeforeLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// No expectations: any ledger call fails the test.
	ledger := new(MockLedger)
	h := newHelper(t, ledger, WithMaxBatch(2))

	tests := []struct {
		name     string
		tokens   []common.Address
		spenders []common.Address
		want     error
	}{
		{"length mismatch", []common.Address{tokenA, tokenB}, []common.Address{spenderX}, model.ErrLengthMismatch},
		{"empty", nil, nil, model.ErrEmptyBatch},
		{"too large", []common.Address{tokenA, tokenB, tokenA}, []common.Address{spenderX, spenderX, spenderY}, model.ErrBatchTooLarge},
		{"zero spender", []common.Address{tokenA, tokenB}, []common.Address{spenderX, {}}, model.ErrZeroIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.BatchRevokeApprovals(ctx, holder, tt.tokens, tt.spenders)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, model.ErrValidation)
		})
	}

	ledger.AssertNotCalled(t, "Allowance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ledger.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBatchRevokePrefetchFailureWritesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ledger := new(MockLedger)
	ledger.On("Allowance", mock.Anything, tokenA, holder, spenderX).Return(big.NewInt(5), nil).Maybe()
	ledger.On("Allowance", mock.Anything, tokenB, holder, spenderY).Return(nil, errors.New("rpc unavailable"))
	h := newHelper(t, ledger)

	_, err := h.BatchRevokeApprovals(ctx, holder, []common.Address{tokenA, tokenB}, []common.Address{spenderX, spenderY})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc unavailable")

	ledger.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, h.IsRevoked(holder, tokenA, spenderX))
}

func TestBatchRevokeReturnsPartialResultsOnWriteFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ledger := new(MockLedger)
	ledger.On("Allowance", mock.Anything, tokenA, holder, spenderX).Return(big.NewInt(5), nil)
	ledger.On("Allowance", mock.Anything, tokenB, holder, spenderY).Return(big.NewInt(7), nil)
	ledger.On("Approve", mock.Anything, tokenA, holder, spenderX, mock.Anything).Return(nil)
	ledger.On("Approve", mock.Anything, tokenB, holder, spenderY, mock.Anything).Return(errors.New("nonce too low"))
	h := newHelper(t, ledger)

	data, err := h.BatchRevokeApprovals(ctx, holder, []common.Address{tokenA, tokenB}, []common.Address{spenderX, spenderY})
	require.Error(t, err)
	require.Len(t, data.Results, 1)
	assert.Equal(t, 1, data.Revoked)
	assert.True(t, h.IsRevoked(holder, tokenA, spenderX))
	assert.False(t, h.IsRevoked(holder, tokenB, spenderY))
	ledger.AssertExpectations(t)
}

func TestReentrantLedgerIsRejected(t *testing.T) {
	t.Parallel()

	callbacks := map[string]func(ctx context.Context, h *Helper, token common.Address, owner common.Address, spender common.Address) error{
		"revoke": func(ctx context.Context, h *Helper, token common.Address, owner common.Address, spender common.Address) error {
			_, err := h.RevokeApproval(ctx, owner, token, spender)
			return err
		},
		"batch": func(ctx context.Context, h *Helper, token common.Address, owner common.Address, spender common.Address) error {
			_, err := h.BatchRevokeApprovals(ctx, owner, []common.Address{token}, []common.Address{spender})
			return err
		},
		"emergency": func(ctx context.Context, h *Helper, token common.Address, _ common.Address, spender common.Address) error {
			_, err := h.EmergencyRevoke(ctx, owner, token, spender)
			return err
		},
	}

	for name, callback := range callbacks {
		for _, fresh := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/fresh_context=%t", name, fresh), func(t *testing.T) {
				t.Parallel()

				ledger := &reentrantLedger{MemoryLedger: NewMemoryLedger(), callback: callback, fresh: fresh}
				ledger.SetAllowance(tokenA, holder, spenderX, big.NewInt(1))
				h := newHelper(t, ledger)
				ledger.helper = h

				type outcome struct {
					result model.RevokeResult
					err    error
				}
				done := make(chan outcome, 1)
				go func() {
					result, err := h.RevokeApproval(context.Background(), holder, tokenA, spenderX)
					done <- outcome{result: result, err: err}
				}()

				var got outcome
				select {
				case got = <-done:
				case <-time.After(2 * time.Second):
					t.Fatal("RevokeApproval did not return after the ledger called back in")
				}

				require.NoError(t, got.err)
				assert.Equal(t, model.RevokeStatusRevoked, got.result.Status)
				require.ErrorIs(t, ledger.err, model.ErrReentrantCall)
				require.ErrorIs(t, ledger.err, model.ErrState)
				assert.False(t, h.IsEmergencyFlagged(tokenA, spenderX))

				// The guard is released once the outer call returns.
				_, err := h.EmergencyRevoke(context.Background(), owner, tokenB, spenderY)
				require.NoError(t, err)
			})
		}
	}
}

func TestEmergencyRevoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	ledger := NewMemoryLedger()
	ledger.SetAllowance(tokenA, holder, spenderX, big.NewInt(99))
	h := newHelper(t, ledger, WithClock(func() time.Time { return at }))

	_, err := h.EmergencyRevoke(ctx, holder, tokenA, spenderX)
	require.ErrorIs(t, err, model.ErrNotOwner)
	assert.False(t, h.IsEmergencyFlagged(tokenA, spenderX))

	marker, err := h.EmergencyRevoke(ctx, owner, tokenA, spenderX)
	require.NoError(t, err)
	assert.Equal(t, owner, marker.FlaggedBy)
	assert.Equal(t, at, marker.FlaggedAt)
	assert.True(t, h.IsEmergencyFlagged(tokenA, spenderX))

	// Marker only: the allowance is untouched.
	data, err := h.Allowance(ctx, holder, tokenA, spenderX)
	require.NoError(t, err)
	assert.Equal(t, int64(99), data.Allowance.Int64())
	assert.True(t, data.Emergency)
	assert.False(t, data.Revoked)
}

func TestNewHelperValidation(t *testing.T) {
	t.Parallel()

	_, err := NewHelper(nil, owner)
	require.Error(t, err)

	_, err = NewHelper(NewMemoryLedger(), common.Address{})
	require.ErrorIs(t, err, model.ErrZeroIdentity)

	h, err := NewHelper(NewMemoryLedger(), owner, WithMaxBatch(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxBatch, h.MaxBatch())
}
