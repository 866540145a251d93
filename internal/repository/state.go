package repository

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"guardian-recovery/internal/recovery"
)

// The persisted layout stores weights as signed 64-bit integers.
func toInt64(name string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%s %d exceeds storable range", name, v)
	}
	return int64(v), nil
}

func toUint64(name string, v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("stored %s %d is negative", name, v)
	}
	return uint64(v), nil
}

func parseStoredAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("stored address %q is malformed", raw)
	}
	return common.HexToAddress(raw), nil
}

// guardianPositions maps each listed identity to its enumeration index.
func guardianPositions(s recovery.State) map[common.Address]int {
	out := make(map[common.Address]int, len(s.Order))
	for idx, id := range s.Order {
		out[id] = idx
	}
	return out
}

// orderFromPositions rebuilds the enumeration list from stored positions.
func orderFromPositions(positions map[int]common.Address) ([]common.Address, error) {
	order := make([]common.Address, len(positions))
	for idx, id := range positions {
		if idx < 0 || idx >= len(order) {
			return nil, fmt.Errorf("guardian position %d out of range", idx)
		}
		order[idx] = id
	}
	return order, nil
}

func delayToMillis(d time.Duration) int64 {
	return d.Milliseconds()
}

func millisToDelay(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func cloneState(s recovery.State) recovery.State {
	out := s
	out.Guardians = append(out.Guardians[:0:0], s.Guardians...)
	out.Order = append(out.Order[:0:0], s.Order...)
	out.Request.Approvers = append(out.Request.Approvers[:0:0], s.Request.Approvers...)
	return out
}

// sortState orders guardians and approvers by address bytes, matching
// recovery.Machine.Snapshot.
func sortState(s *recovery.State) {
	sort.Slice(s.Guardians, func(i, j int) bool {
		return s.Guardians[i].Identity.Cmp(s.Guardians[j].Identity) < 0
	})
	sort.Slice(s.Request.Approvers, func(i, j int) bool {
		return s.Request.Approvers[i].Cmp(s.Request.Approvers[j]) < 0
	})
}
