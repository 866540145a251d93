// Package revoke clears ERC-20 style token allowances on behalf of an account
// and keeps a record of what was revoked.
package revoke

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"guardian-recovery/internal/model"
)

const (
	DefaultMaxBatch = 50
	prefetchLimit   = 8
)

type pairKey struct {
	token   common.Address
	spender common.Address
}

type ownedPair struct {
	owner common.Address
	pairKey
}

type Helper struct {
	ledger   TokenLedger
	owner    common.Address
	maxBatch int
	now      func() time.Time

	// inCall is held for the whole of a mutating call, ledger calls included.
	// Any mutating call that finds it set fails instead of waiting.
	inCall    atomic.Bool
	stateMu   sync.RWMutex
	revoked   map[ownedPair]bool
	emergency map[pairKey]model.EmergencyMarker
}

type Option func(*Helper)

func WithClock(now func() time.Time) Option {
	return func(h *Helper) { h.now = now }
}

func WithMaxBatch(n int) Option {
	return func(h *Helper) {
		if n > 0 {
			h.maxBatch = n
		}
	}
}

// NewHelper binds a helper to ledger. owner is the privileged account allowed
// to raise emergency markers.
func NewHelper(ledger TokenLedger, owner common.Address, opts ...Option) (*Helper, error) {
	if ledger == nil {
		return nil, fmt.Errorf("revoke helper requires a token ledger")
	}
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: revoke helper owner", model.ErrZeroIdentity)
	}

	h := &Helper{
		ledger:    ledger,
		owner:     owner,
		maxBatch:  DefaultMaxBatch,
		now:       time.Now,
		revoked:   map[ownedPair]bool{},
		emergency: map[pairKey]model.EmergencyMarker{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Helper) MaxBatch() int {
	return h.maxBatch
}

// enter marks the helper busy. Callers that may overlap must serialize
// themselves; an overlapping call is indistinguishable from a ledger calling
// back in and is rejected the same way.
func (h *Helper) enter() (func(), error) {
	if !h.inCall.CompareAndSwap(false, true) {
		return nil, model.ErrReentrantCall
	}
	return func() { h.inCall.Store(false) }, nil
}

// RevokeApproval sets caller's allowance for spender on token to zero.
// Revoking a pair that already has no allowance succeeds without a ledger write.
func (h *Helper) RevokeApproval(ctx context.Context, caller common.Address, token common.Address, spender common.Address) (model.RevokeResult, error) {
	if err := validatePair(caller, token, spender); err != nil {
		return model.RevokeResult{}, err
	}

	leave, err := h.enter()
	if err != nil {
		return model.RevokeResult{}, err
	}
	defer leave()

	previous, err := h.ledger.Allowance(ctx, token, caller, spender)
	if err != nil {
		return model.RevokeResult{}, fmt.Errorf("read allowance: %w", err)
	}
	return h.revokeOne(ctx, caller, token, spender, previous)
}

// BatchRevokeApprovals revokes tokens[i]/spenders[i] for every i. All input is
// validated before the ledger is touched. On a ledger failure the results of
// pairs already processed are returned along with the error.
func (h *Helper) BatchRevokeApprovals(ctx context.Context, caller common.Address, tokens []common.Address, spenders []common.Address) (model.BatchRevokeData, error) {
	if len(tokens) != len(spenders) {
		return model.BatchRevokeData{}, fmt.Errorf("%w: %d tokens, %d spenders", model.ErrLengthMismatch, len(tokens), len(spenders))
	}
	if len(tokens) == 0 {
		return model.BatchRevokeData{}, model.ErrEmptyBatch
	}
	if len(tokens) > h.maxBatch {
		return model.BatchRevokeData{}, fmt.Errorf("%w: %d > %d", model.ErrBatchTooLarge, len(tokens), h.maxBatch)
	}
	for i := range tokens {
		if err := validatePair(caller, tokens[i], spenders[i]); err != nil {
			return model.BatchRevokeData{}, fmt.Errorf("pair %d: %w", i, err)
		}
	}

	leave, err := h.enter()
	if err != nil {
		return model.BatchRevokeData{}, err
	}
	defer leave()

	previous := make([]*big.Int, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchLimit)
	for i := range tokens {
		g.Go(func() error {
			amount, err := h.ledger.Allowance(gctx, tokens[i], caller, spenders[i])
			if err != nil {
				return fmt.Errorf("read allowance for pair %d: %w", i, err)
			}
			previous[i] = amount
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.BatchRevokeData{}, err
	}

	data := model.BatchRevokeData{Results: make([]model.RevokeResult, 0, len(tokens))}
	for i := range tokens {
		result, err := h.revokeOne(ctx, caller, tokens[i], spenders[i], previous[i])
		if err != nil {
			return data, fmt.Errorf("pair %d: %w", i, err)
		}
		data.Results = append(data.Results, result)
		if result.Status == model.RevokeStatusRevoked {
			data.Revoked++
		}
	}
	return data, nil
}

func (h *Helper) revokeOne(ctx context.Context, caller common.Address, token common.Address, spender common.Address, previous *big.Int) (model.RevokeResult, error) {
	if previous == nil {
		previous = new(big.Int)
	}
	result := model.RevokeResult{Token: token, Spender: spender, Previous: previous, Status: model.RevokeStatusAlreadyRevoked}

	if previous.Sign() != 0 {
		if err := h.ledger.Approve(ctx, token, caller, spender, new(big.Int)); err != nil {
			return model.RevokeResult{}, fmt.Errorf("clear allowance: %w", err)
		}
		result.Status = model.RevokeStatusRevoked
	}

	h.stateMu.Lock()
	h.revoked[ownedPair{owner: caller, pairKey: pairKey{token: token, spender: spender}}] = true
	h.stateMu.Unlock()
	return result, nil
}

// EmergencyRevoke flags token/spender as compromised. It records the marker
// only; no allowance is changed.
func (h *Helper) EmergencyRevoke(ctx context.Context, caller common.Address, token common.Address, spender common.Address) (model.EmergencyMarker, error) {
	if caller != h.owner {
		return model.EmergencyMarker{}, model.ErrNotOwner
	}
	if token == (common.Address{}) || spender == (common.Address{}) {
		return model.EmergencyMarker{}, model.ErrZeroIdentity
	}

	leave, err := h.enter()
	if err != nil {
		return model.EmergencyMarker{}, err
	}
	defer leave()

	marker := model.EmergencyMarker{
		Token:     token,
		Spender:   spender,
		FlaggedBy: caller,
		FlaggedAt: h.now().UTC(),
	}

	h.stateMu.Lock()
	h.emergency[pairKey{token: token, spender: spender}] = marker
	h.stateMu.Unlock()
	return marker, nil
}

func (h *Helper) Allowance(ctx context.Context, owner common.Address, token common.Address, spender common.Address) (model.AllowanceData, error) {
	amount, err := h.ledger.Allowance(ctx, token, owner, spender)
	if err != nil {
		return model.AllowanceData{}, fmt.Errorf("read allowance: %w", err)
	}
	return model.AllowanceData{
		Owner:     owner,
		Token:     token,
		Spender:   spender,
		Allowance: amount,
		Revoked:   h.IsRevoked(owner, token, spender),
		Emergency: h.IsEmergencyFlagged(token, spender),
	}, nil
}

func (h *Helper) IsRevoked(owner common.Address, token common.Address, spender common.Address) bool {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.revoked[ownedPair{owner: owner, pairKey: pairKey{token: token, spender: spender}}]
}

func (h *Helper) IsEmergencyFlagged(token common.Address, spender common.Address) bool {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	_, ok := h.emergency[pairKey{token: token, spender: spender}]
	return ok
}

func validatePair(caller common.Address, token common.Address, spender common.Address) error {
	switch {
	case caller == (common.Address{}):
		return fmt.Errorf("%w: caller", model.ErrZeroIdentity)
	case token == (common.Address{}):
		return fmt.Errorf("%w: token", model.ErrZeroIdentity)
	case spender == (common.Address{}):
		return fmt.Errorf("%w: spender", model.ErrZeroIdentity)
	}
	return nil
}
