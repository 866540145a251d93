package recovery

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"guardian-recovery/internal/model"
)

// State is the complete persisted layout of a Machine: one record per
// guardian, the enumeration list, the scalars and the single request slot.
type State struct {
	Owner          common.Address   `json:"owner"`
	Signer         common.Address   `json:"signer"`
	RequiredWeight uint64           `json:"required_weight"`
	Delay          time.Duration    `json:"delay"`
	TotalWeight    uint64           `json:"total_weight"`
	Guardians      []model.Guardian `json:"guardians"`
	Order          []common.Address `json:"order"`
	Request        Request          `json:"request"`
}

// Request is the singleton recovery slot. A zero Target means the slot is empty.
type Request struct {
	Target         common.Address   `json:"target"`
	InitiatedAt    time.Time        `json:"initiated_at"`
	Executed       bool             `json:"executed"`
	ApprovalWeight uint64           `json:"approval_weight"`
	Approvers      []common.Address `json:"approvers"`
}

func (r Request) Pending() bool {
	return r.Target != (common.Address{}) && !r.Executed
}

var ErrCorruptState = errors.New("corrupt recovery state")

// Snapshot returns a deep copy of the machine state. Guardians are sorted by
// identity and approvers likewise so that equal states compare equal.
func (m *Machine) Snapshot() State {
	guardians := m.registry.entries()
	sort.Slice(guardians, func(i, j int) bool {
		return guardians[i].Identity.Cmp(guardians[j].Identity) < 0
	})

	approvers := make([]common.Address, 0, len(m.request.approvers))
	for id := range m.request.approvers {
		approvers = append(approvers, id)
	}
	sort.Slice(approvers, func(i, j int) bool {
		return approvers[i].Cmp(approvers[j]) < 0
	})

	return State{
		Owner:          m.owner,
		Signer:         m.signer,
		RequiredWeight: m.policy.Required(),
		Delay:          m.gate.Delay(),
		TotalWeight:    m.registry.TotalWeight(),
		Guardians:      guardians,
		Order:          m.registry.List(),
		Request: Request{
			Target:         m.request.target,
			InitiatedAt:    m.request.initiatedAt,
			Executed:       m.request.executed,
			ApprovalWeight: m.request.approvalWeight,
			Approvers:      approvers,
		},
	}
}

// Restore replaces the machine state with s and drops buffered events. The
// state is checked before anything is replaced.
func (m *Machine) Restore(s State) error {
	next, err := FromState(s)
	if err != nil {
		return err
	}
	*m = *next
	return nil
}

// FromState rebuilds a Machine from persisted state, rejecting state whose
// total weight or enumeration list disagrees with the guardian records.
func FromState(s State) (*Machine, error) {
	m, err := NewMachine(Config{
		Owner:          s.Owner,
		Signer:         s.Signer,
		RequiredWeight: s.RequiredWeight,
		Delay:          s.Delay,
	})
	if err != nil {
		return nil, err
	}

	reg := NewRegistry()
	var activeWeight uint64
	active := 0
	for _, g := range s.Guardians {
		if _, dup := reg.guardians[g.Identity]; dup {
			return nil, fmt.Errorf("%w: duplicate guardian %s", ErrCorruptState, g.Identity.Hex())
		}
		copied := g
		reg.guardians[g.Identity] = &copied
		if g.Active {
			active++
			activeWeight += g.Weight
		}
	}
	if active != len(s.Order) {
		return nil, fmt.Errorf("%w: %d active guardians but %d listed", ErrCorruptState, active, len(s.Order))
	}
	for idx, id := range s.Order {
		g, ok := reg.guardians[id]
		if !ok || !g.Active {
			return nil, fmt.Errorf("%w: listed guardian %s is not active", ErrCorruptState, id.Hex())
		}
		if _, dup := reg.position[id]; dup {
			return nil, fmt.Errorf("%w: guardian %s listed twice", ErrCorruptState, id.Hex())
		}
		reg.position[id] = idx
		reg.order = append(reg.order, id)
	}
	if activeWeight != s.TotalWeight {
		return nil, fmt.Errorf("%w: total weight %d != sum of active weights %d", ErrCorruptState, s.TotalWeight, activeWeight)
	}
	reg.totalWeight = activeWeight
	m.registry = reg

	if s.Request.Target != (common.Address{}) {
		approvers := make(map[common.Address]struct{}, len(s.Request.Approvers))
		for _, id := range s.Request.Approvers {
			approvers[id] = struct{}{}
		}
		m.request = request{
			target:         s.Request.Target,
			initiatedAt:    s.Request.InitiatedAt,
			executed:       s.Request.Executed,
			approvalWeight: s.Request.ApprovalWeight,
			approvers:      approvers,
		}
	}

	return m, nil
}
