package policy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hatsunemiku3939/retrydlq/types"
)

// Registry maps handler keys to their policies.
// Policies are registered at startup; Resolve is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	policies map[types.HandlerKey]*Policy
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[types.HandlerKey]*Policy)}
}

// Register attaches p to the handler identified by key.
// A handler can be registered only once.
func (r *Registry) Register(key types.HandlerKey, p *Policy) error {
	if key == "" {
		return fmt.Errorf("%w: handler key is required", types.ErrInvalidPolicy)
	}
	if p == nil {
		return fmt.Errorf("%w: nil policy for %s", types.ErrInvalidPolicy, key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.policies[key]; exists {
		return fmt.Errorf("%w: handler %s already registered", types.ErrInvalidPolicy, key)
	}
	r.policies[key] = p
	return nil
}

// Resolve returns the policy registered for key.
func (r *Registry) Resolve(key types.HandlerKey) (*Policy, error) {
	r.mu.RLock()
	p, ok := r.policies[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no policy declared for handler %s", types.ErrConfigurationMissing, key)
	}
	return p, nil
}

// Keys returns the registered handler keys in sorted order.
func (r *Registry) Keys() []types.HandlerKey {
	r.mu.RLock()
	keys := make([]types.HandlerKey, 0, len(r.policies))
	for k := range r.policies {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
