package market

import (
	"sync"

	"github.com/agoralabs/agora/internal/errs"
)

// Registry maps participants to their roles and preserves registration
// order for enumeration. Writes are funnelled through the order engine;
// reads may come from the reporting collaborator at any time.
type Registry struct {
	mu    sync.RWMutex
	roles map[AccountID]Role
	order []AccountID
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	r := new(Registry)
	r.roles = make(map[AccountID]Role)
	return r
}

// Register stores the role for a previously unseen account.
func (r *Registry) Register(account AccountID, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[account]; ok {
		return errs.New("registry/register", errs.CodeAlreadyRegistered,
			errs.WithMessage("account already registered"))
	}
	r.roles[account] = role
	r.order = append(r.order, account)
	return nil
}

// ChangeRole overwrites the role of a registered account. There is no
// restriction on transitions between Buyer, Seller, and Both.
func (r *Registry) ChangeRole(account AccountID, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[account]; !ok {
		return errs.New("registry/change-role", errs.CodeNotRegistered,
			errs.WithMessage("account not registered"))
	}
	r.roles[account] = role
	return nil
}

// RoleOf returns the registered role for the account.
func (r *Registry) RoleOf(account AccountID) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[account]
	if !ok {
		return "", errs.New("registry/role-of", errs.CodeNotRegistered,
			errs.WithMessage("account not registered"))
	}
	return role, nil
}

// Participants returns a snapshot of all registered participants in
// registration order.
func (r *Registry) Participants() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Participant, 0, len(r.order))
	for _, account := range r.order {
		out = append(out, Participant{Account: account, Role: r.roles[account]})
	}
	return out
}

// Restore reinstalls a persisted participant without the already-registered
// check. Used only while loading durable state.
func (r *Registry) Restore(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[p.Account]; !ok {
		r.order = append(r.order, p.Account)
	}
	r.roles[p.Account] = p.Role
}
