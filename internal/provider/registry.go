package provider

import (
	"fmt"
	"sync"
)

// Registry maps service types to their configured provider instance and
// rate limiter. Providers are registered disabled; only enabled providers
// participate in resolution.
type Registry struct {
	mu        sync.RWMutex
	providers map[ServiceType]Provider
	limiters  map[ServiceType]*RateLimiter
	enabled   map[ServiceType]bool
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[ServiceType]Provider),
		limiters:  make(map[ServiceType]*RateLimiter),
		enabled:   make(map[ServiceType]bool),
	}
}

// Register adds a provider under its service type together with its call
// budget. Registering the same service twice is an error.
func (r *Registry) Register(p Provider, limit RateLimit) error {
	if p == nil {
		return fmt.Errorf("register: nil provider")
	}
	svc := p.Service()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[svc]; exists {
		return fmt.Errorf("provider %s already registered", svc)
	}
	r.providers[svc] = p
	r.limiters[svc] = NewRateLimiter(limit)
	r.enabled[svc] = false
	return nil
}

// Enable marks a registered provider as eligible for resolution.
func (r *Registry) Enable(svc ServiceType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[svc]; !exists {
		return fmt.Errorf("provider %s not registered", svc)
	}
	r.enabled[svc] = true
	return nil
}

// Get returns the provider for svc when it is registered and enabled.
func (r *Registry) Get(svc ServiceType) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.enabled[svc] {
		return nil, false
	}
	p, ok := r.providers[svc]
	return p, ok
}

// Limiter returns the rate limiter bound to svc, or nil when svc is not
// registered. A nil limiter never blocks.
func (r *Registry) Limiter(svc ServiceType) *RateLimiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[svc]
}

// EnabledServices filters order down to the services that are registered
// and enabled, preserving the caller's priority order.
func (r *Registry) EnabledServices(order PriorityOrder) []ServiceType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ServiceType, 0, len(order))
	for _, svc := range order {
		if r.enabled[svc] {
			out = append(out, svc)
		}
	}
	return out
}
