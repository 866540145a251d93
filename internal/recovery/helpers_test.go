package recovery

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	signer    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	newSigner = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	g1        = common.HexToAddress("0x0000000000000000000000000000000000000001")
	g2        = common.HexToAddress("0x0000000000000000000000000000000000000002")
	g3        = common.HexToAddress("0x0000000000000000000000000000000000000003")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000000ff")

	t0    = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	delay = 48 * time.Hour
)

// newTestMachine returns threshold 2 with G1 (weight 1) and G2 (weight 2).
func newTestMachine(t *testing.T) *Machine {
	t.Helper()

	m, err := NewMachine(Config{Owner: owner, Signer: signer, RequiredWeight: 2, Delay: delay})
	require.NoError(t, err)
	require.NoError(t, m.AddGuardian(owner, g1, 1, t0))
	require.NoError(t, m.AddGuardian(owner, g2, 2, t0))
	m.DrainEvents()

	return m
}

func sumActive(m *Machine) uint64 {
	var total uint64
	for _, id := range m.Guardians() {
		info := m.GuardianInfo(id)
		if info.Active {
			total += info.Weight
		}
	}
	return total
}
