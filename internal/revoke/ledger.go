package revoke

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TokenLedger is the external token contract surface the helper drives.
// Implementations may call back into the helper; such calls are rejected.
type TokenLedger interface {
	Allowance(ctx context.Context, token common.Address, owner common.Address, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token common.Address, owner common.Address, spender common.Address, amount *big.Int) error
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// MemoryLedger keeps allowances in process. Missing entries read as zero.
type MemoryLedger struct {
	mu         sync.RWMutex
	allowances map[allowanceKey]*big.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{allowances: map[allowanceKey]*big.Int{}}
}

func (l *MemoryLedger) Allowance(_ context.Context, token common.Address, owner common.Address, spender common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	amount, ok := l.allowances[allowanceKey{token: token, owner: owner, spender: spender}]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(amount), nil
}

func (l *MemoryLedger) Approve(_ context.Context, token common.Address, owner common.Address, spender common.Address, amount *big.Int) error {
	l.SetAllowance(token, owner, spender, amount)
	return nil
}

func (l *MemoryLedger) SetAllowance(token common.Address, owner common.Address, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{token: token, owner: owner, spender: spender}
	if amount == nil || amount.Sign() == 0 {
		delete(l.allowances, key)
		return
	}
	l.allowances[key] = new(big.Int).Set(amount)
}
