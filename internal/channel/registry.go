// Package channel provides the outbound channel registry: lazily created,
// cached broker handles keyed by logical channel name.
package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/cassiomorais/relay/internal/broker"
	"github.com/cassiomorais/relay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Registry caches one publisher handle per channel name. Concurrent Get
// calls for the same unseen name are collapsed into a single Bind, so
// exactly one handle is created and shared. Failed binds are never cached.
type Registry struct {
	binder  broker.Binder
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	handles map[string]broker.Publisher
	flight  singleflight.Group
}

func NewRegistry(binder broker.Binder, logger zerolog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		binder:  binder,
		logger:  logger,
		metrics: metrics,
		handles: make(map[string]broker.Publisher),
	}
}

// Get returns the cached handle for the channel, creating it on first use.
func (r *Registry) Get(ctx context.Context, name string) (broker.Publisher, error) {
	r.mu.RLock()
	h, ok := r.handles[name]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	v, err, _ := r.flight.Do(name, func() (any, error) {
		// A concurrent caller may have won the flight and stored already.
		r.mu.RLock()
		h, ok := r.handles[name]
		r.mu.RUnlock()
		if ok {
			return h, nil
		}

		h, err := r.binder.Bind(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("bind channel %q: %w", name, err)
		}

		r.mu.Lock()
		r.handles[name] = h
		size := len(r.handles)
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.RegistryHandles.Set(float64(size))
		}
		r.logger.Debug().Str("channel", name).Msg("Registered outbound channel handle")
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(broker.Publisher), nil
}

// Lookup returns the cached handle without creating one.
func (r *Registry) Lookup(name string) (broker.Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	return h, ok
}

// Cleanup evicts every cached handle whose underlying channel has been
// cancelled, logging each eviction. Safe to run concurrently with Get.
func (r *Registry) Cleanup(ctx context.Context) int {
	r.mu.RLock()
	snapshot := make(map[string]broker.Publisher, len(r.handles))
	for name, h := range r.handles {
		snapshot[name] = h
	}
	r.mu.RUnlock()

	evicted := 0
	for name, h := range snapshot {
		if !h.Cancelled(ctx) {
			continue
		}
		r.mu.Lock()
		// Evict only if the cached handle is still the one we checked.
		if cur, ok := r.handles[name]; ok && cur == h {
			delete(r.handles, name)
			evicted++
		}
		size := len(r.handles)
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.RegistryHandles.Set(float64(size))
			r.metrics.RegistryEvictions.Inc()
		}
		r.logger.Info().Str("channel", name).Msg("Evicted cancelled channel handle")
	}
	return evicted
}

// Len returns the number of cached handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
