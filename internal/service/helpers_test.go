package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guardian-recovery/internal/event"
	"guardian-recovery/internal/model"
	"guardian-recovery/internal/recovery"
)

var (
	ownerAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	signerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	newSignerAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	g1Addr        = common.HexToAddress("0x0000000000000000000000000000000000000001")
	g2Addr        = common.HexToAddress("0x0000000000000000000000000000000000000002")
	g3Addr        = common.HexToAddress("0x0000000000000000000000000000000000000003")

	start         = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	recoveryDelay = 24 * time.Hour
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type MockStateStore struct {
	mock.Mock
}

func (m *MockStateStore) Load(ctx context.Context) (recovery.State, bool, error) {
	args := m.Called(ctx)
	state, _ := args.Get(0).(recovery.State)
	return state, args.Bool(1), args.Error(2)
}

func (m *MockStateStore) Save(ctx context.Context, s recovery.State) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func actorFor(addr common.Address) model.AuditActor {
	return model.AuditActor{Address: addr.Hex(), Role: model.RoleAccount, IP: "127.0.0.1"}
}

func bootstrapConfig() recovery.Config {
	return recovery.Config{Owner: ownerAddr, Signer: signerAddr, RequiredWeight: 2, Delay: recoveryDelay}
}

func seedGuardians() []GuardianSeed {
	return []GuardianSeed{{Identity: g1Addr, Weight: 1}, {Identity: g2Addr, Weight: 2}}
}

// collect drains whatever is buffered on ch without blocking.
func collect(ch <-chan event.Event) []event.Event {
	var out []event.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventTypes(events []event.Event) []event.Type {
	types := make([]event.Type, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func newAudit(t *testing.T) *AuditService {
	t.Helper()
	audit, err := NewAuditService(t.TempDir() + "/audit/audit.jsonl")
	require.NoError(t, err)
	return audit
}
