package recovery

import (
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"guardian-recovery/internal/model"
)

// MaxWeight bounds the total guardian weight, the required weight and the
// accumulated approval weight so that every persisted weight fits a signed
// 64-bit column.
const MaxWeight uint64 = math.MaxInt64

// Registry owns the guardian set. totalWeight always equals the sum of the
// weights of active guardians and is maintained incrementally.
type Registry struct {
	guardians   map[common.Address]*model.Guardian
	order       []common.Address
	position    map[common.Address]int
	totalWeight uint64
}

func NewRegistry() *Registry {
	return &Registry{
		guardians: map[common.Address]*model.Guardian{},
		order:     []common.Address{},
		position:  map[common.Address]int{},
	}
}

func (r *Registry) Add(identity common.Address, weight uint64, now time.Time) error {
	if identity == (common.Address{}) {
		return zeroIdentity("add guardian")
	}
	if g, ok := r.guardians[identity]; ok && g.Active {
		return fmt.Errorf("add guardian %s: %w", identity.Hex(), model.ErrGuardianExists)
	}
	if weight > MaxWeight-r.totalWeight {
		return fmt.Errorf("add guardian %s: %w", identity.Hex(), model.ErrInvalidWeight)
	}

	r.guardians[identity] = &model.Guardian{
		Identity:   identity,
		Active:     true,
		Weight:     weight,
		LastActive: now.UTC(),
	}
	r.totalWeight += weight
	r.position[identity] = len(r.order)
	r.order = append(r.order, identity)

	return nil
}

// Remove deactivates a guardian. The entry is kept; only the enumeration list
// forgets it, using swap-with-last so the final order is unspecified.
func (r *Registry) Remove(identity common.Address) (uint64, error) {
	g, ok := r.guardians[identity]
	if !ok || !g.Active {
		return 0, fmt.Errorf("remove guardian %s: %w", identity.Hex(), model.ErrGuardianNotFound)
	}

	r.totalWeight -= g.Weight
	g.Active = false

	idx := r.position[identity]
	last := len(r.order) - 1
	if idx != last {
		moved := r.order[last]
		r.order[idx] = moved
		r.position[moved] = idx
	}
	r.order = r.order[:last]
	delete(r.position, identity)

	return g.Weight, nil
}

// UpdateWeight stores a new weight and returns the previous one.
func (r *Registry) UpdateWeight(identity common.Address, weight uint64, now time.Time) (uint64, error) {
	g, ok := r.guardians[identity]
	if !ok || !g.Active {
		return 0, fmt.Errorf("update guardian weight %s: %w", identity.Hex(), model.ErrGuardianNotFound)
	}

	old := g.Weight
	if weight > old {
		delta := weight - old
		if delta > MaxWeight-r.totalWeight {
			return 0, fmt.Errorf("update guardian weight %s: %w", identity.Hex(), model.ErrInvalidWeight)
		}
		r.totalWeight += delta
	} else {
		r.totalWeight -= old - weight
	}

	g.Weight = weight
	g.LastActive = now.UTC()
	return old, nil
}

func (r *Registry) IsActive(identity common.Address) bool {
	g, ok := r.guardians[identity]
	return ok && g.Active
}

// WeightOf returns the live weight of an active guardian.
func (r *Registry) WeightOf(identity common.Address) (uint64, bool) {
	g, ok := r.guardians[identity]
	if !ok || !g.Active {
		return 0, false
	}
	return g.Weight, true
}

// Info returns the stored entry. Unknown identities report inactive with zero weight.
func (r *Registry) Info(identity common.Address) model.GuardianInfo {
	g, ok := r.guardians[identity]
	if !ok {
		return model.GuardianInfo{Identity: identity}
	}
	return model.GuardianInfo{
		Identity:   g.Identity,
		Active:     g.Active,
		Weight:     g.Weight,
		LastActive: g.LastActive,
	}
}

func (r *Registry) List() []common.Address {
	out := make([]common.Address, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) TotalWeight() uint64 {
	return r.totalWeight
}

func (r *Registry) entries() []model.Guardian {
	out := make([]model.Guardian, 0, len(r.guardians))
	for _, g := range r.guardians {
		out = append(out, *g)
	}
	return out
}

func (r *Registry) clone() *Registry {
	c := NewRegistry()
	for id, g := range r.guardians {
		copied := *g
		c.guardians[id] = &copied
	}
	c.order = append(c.order, r.order...)
	for id, idx := range r.position {
		c.position[id] = idx
	}
	c.totalWeight = r.totalWeight
	return c
}

func zeroIdentity(op string) error {
	return fmt.Errorf("%s: %w", op, model.ErrZeroIdentity)
}
