// Package reconciler implements startup and ongoing reconciliation
// between persisted flow state and the live Runtime Registry. Adapted
// from the teacher's node/container reconciliation loop: the same
// ticker-driven "list desired, compare to actual, converge" shape, here
// converging the Flow Runtime's live Lifecycle Managers against the
// Flow Store Gateway's persisted documents and runtime-state rows
// rather than cluster nodes and containers.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/runtime/pkg/flowregistry"
	"github.com/flowforge/runtime/pkg/flowstore"
	"github.com/flowforge/runtime/pkg/log"
	"github.com/flowforge/runtime/pkg/metrics"
	"github.com/flowforge/runtime/pkg/types"
	"github.com/rs/zerolog"
)

const reconcileInterval = 10 * time.Second

// Reconciler converges the Runtime Registry against the Flow Store
// Gateway. Its startup pass (Reconcile, called once before serving
// traffic) is what spec.md's reconciliation invariant requires: every
// persisted flow gets a Stopped Manager, and flows whose last checkpoint
// was Running with auto_restart set are started. The periodic loop
// beyond that is a safety net, not a requirement: Reconcile is
// idempotent, so running it again on a timer costs little and recovers
// a flow a process briefly failed to adopt at boot.
type Reconciler struct {
	registry *flowregistry.Registry
	store    flowstore.Store
	logger   zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// New creates a Reconciler over registry/store.
func New(registry *flowregistry.Registry, store flowstore.Store) *Reconciler {
	return &Reconciler{
		registry: registry,
		store:    store,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic safety-net loop. Callers must call
// Reconcile once themselves before accepting external requests; Start
// only arranges for it to run again later.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop ends the periodic loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.Reconcile(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Reconcile adopts every persisted flow not already in the registry and
// starts the ones whose last checkpoint was Running with auto_restart
// set. Individual flow failures are logged and do not abort the pass,
// matching the teacher's per-resource error tolerance in its own
// reconcile cycle.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	flows, err := r.store.ListFlows()
	if err != nil {
		return err
	}

	known := make(map[string]bool)
	for _, id := range r.registry.List() {
		known[id] = true
	}

	for _, f := range flows {
		if known[f.ID] {
			continue
		}
		r.adopt(ctx, f)
	}
	return nil
}

func (r *Reconciler) adopt(ctx context.Context, f types.Flow) {
	m, err := r.registry.Create(f)
	if err != nil {
		r.logger.Error().Str("flow_id", f.ID).Err(err).Msg("failed to adopt persisted flow")
		return
	}

	state, err := r.store.GetRuntimeState(f.ID)
	if err != nil {
		// No prior checkpoint: the flow was created but never started.
		return
	}
	if state.State != types.FlowRunning || !f.AutoRestart {
		return
	}

	r.logger.Info().Str("flow_id", f.ID).Msg("restarting flow left running at last checkpoint")
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := m.Start(startCtx); err != nil {
		r.logger.Error().Str("flow_id", f.ID).Err(err).Msg("auto-restart failed")
		return
	}
	metrics.ReconciliationRestartsTotal.Inc()
}
