package claims

import (
	"errors"
	"sync"
)

// ErrDuplicateClaim is returned when two claims share a key.
var ErrDuplicateClaim = errors.New("claim key already registered")

// Registry holds claims by key, in registration order, plus the validators
// applied to every verified session.
type Registry struct {
	mu         sync.RWMutex
	byKey      map[string]Claim
	order      []string
	validators []Validator
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Claim)}
}

// Register adds claims. Each claim's value is built into new sessions.
func (r *Registry) Register(claims ...Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range claims {
		if c == nil || c.Key() == "" {
			return errors.New("claim key cannot be empty")
		}
		if _, exists := r.byKey[c.Key()]; exists {
			return ErrDuplicateClaim
		}
		r.byKey[c.Key()] = c
		r.order = append(r.order, c.Key())
	}
	return nil
}

// AddGlobalValidators appends validators checked on every verification.
func (r *Registry) AddGlobalValidators(validators ...Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators = append(r.validators, validators...)
}

func (r *Registry) Get(key string) (Claim, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[key]
	return c, ok
}

// All returns claims in registration order.
func (r *Registry) All() []Claim {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Claim, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}

// GlobalValidators returns a copy of the global validator list.
func (r *Registry) GlobalValidators() []Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Validator(nil), r.validators...)
}
