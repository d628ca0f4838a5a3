package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/optiview/optiview/internal/events"
)

// Factory builds the collaborator set for a new instance. It lets the
// registry stay ignorant of how adapters are wired per site.
type Factory func(cfg Config) (Collaborators, error)

// Registry holds the live orchestrator instances, one per (organization,
// site) pair. It refuses to start a second instance for a key that already
// has one; cross-process leasing is out of scope.
type Registry struct {
	factory Factory
	ids     IDGenerator
	clock   Clock
	emitter events.Emitter
	logger  *zap.Logger

	mu        sync.Mutex
	instances map[string]*Orchestrator
}

// NewRegistry constructs a Registry.
func NewRegistry(factory Factory, ids IDGenerator, clock Clock, emitter events.Emitter, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factory:   factory,
		ids:       ids,
		clock:     clock,
		emitter:   emitter,
		logger:    logger,
		instances: make(map[string]*Orchestrator),
	}
}

func instanceKey(orgID, siteID string) string {
	return orgID + "/" + siteID
}

// Start creates and starts an instance for the given config.
func (r *Registry) Start(ctx context.Context, cfg Config) (*Orchestrator, error) {
	key := instanceKey(cfg.OrgID, cfg.SiteID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[key]; ok {
		return nil, fmt.Errorf("site %s: %w", key, ErrAlreadyRunning)
	}
	collab, err := r.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("build collaborators for %s: %w", key, err)
	}
	inst := New(cfg, collab, r.ids, r.clock, r.emitter, r.logger)
	if err := inst.Start(ctx); err != nil {
		return nil, err
	}
	r.instances[key] = inst
	return inst, nil
}

// Get returns the live instance for the key, if any.
func (r *Registry) Get(orgID, siteID string) (*Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[instanceKey(orgID, siteID)]
	return inst, ok
}

// Stop stops and removes the instance for the key.
func (r *Registry) Stop(ctx context.Context, orgID, siteID string) error {
	key := instanceKey(orgID, siteID)
	r.mu.Lock()
	inst, ok := r.instances[key]
	delete(r.instances, key)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("site %s: %w", key, ErrNotRunning)
	}
	return inst.Stop(ctx)
}

// StopAll stops every live instance; used during service shutdown.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	instances := make(map[string]*Orchestrator, len(r.instances))
	for key, inst := range r.instances {
		instances[key] = inst
	}
	r.instances = make(map[string]*Orchestrator)
	r.mu.Unlock()

	for key, inst := range instances {
		if err := inst.Stop(ctx); err != nil {
			r.logger.Warn("stop instance failed", zap.String("key", key), zap.Error(err))
		}
	}
}
