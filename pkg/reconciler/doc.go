/*
Package reconciler provides startup and ongoing reconciliation between
persisted flow documents and the live Runtime Registry.

On startup, before the Flow Runtime accepts external requests, every
flow persisted in the Flow Store Gateway must have a corresponding
Lifecycle Manager, and every flow whose last checkpoint was Running
with auto_restart set must be restarted. The Reconciler performs this
pass once at boot and then again periodically as a safety net.

# Architecture

	┌────────────────────────────────────────────────────────────┐
	│                  Reconciliation Pass                       │
	│         (once at boot, then every 10 seconds)               │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	          List persisted flows
	                 │
	                 ▼
	      For each flow not yet adopted:
	                 │
	        ┌────────┴────────┐
	        ▼                 ▼
	  Adopt into the     Checkpoint was Running
	  Runtime Registry   and auto_restart set?
	  (Stopped Manager)          │
	                             ▼
	                      Start the flow

# Core Components

Reconciler: The reconciliation engine over a Runtime Registry and a
Flow Store Gateway.

	rec := reconciler.New(runtime, store)
	if err := rec.Reconcile(ctx); err != nil {
		// log and continue; individual flow failures don't abort the pass
	}
	rec.Start()  // periodic 10s safety-net loop
	defer rec.Stop()

Reconcile is idempotent: flows already present in the registry are
skipped, so running it again on a timer costs little and recovers a
flow the process failed to adopt at boot (a transient storage hiccup,
for example).

# Reconciliation Strategy

For each persisted flow not already known to the Runtime Registry:

 1. Adopt it into the registry, producing a Stopped Lifecycle Manager
 2. Read its last runtime-state checkpoint, if any
 3. If the checkpoint's state was Running and the flow document's
    AutoRestart flag is set, start it
 4. Otherwise leave it Stopped — a flow that was deliberately stopped,
    or has no checkpoint at all, is never auto-started

Individual adoption or start failures are logged and do not abort the
pass, matching the per-resource error tolerance a reconciliation loop
needs to make progress on every *other* flow despite one being broken.

# Usage

	import "github.com/flowforge/runtime/pkg/reconciler"

	rec := reconciler.New(runtime, store)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rec.Reconcile(ctx); err != nil {
		log.Logger.Warn().Err(err).Msg("startup reconciliation reported errors")
	}

	rec.Start()
	defer rec.Stop()

# Integration Points

This package integrates with:

  - pkg/flowregistry: Adopts persisted flows, starts auto-restart candidates
  - pkg/flowstore: Source of persisted flow documents and runtime-state checkpoints
  - pkg/flow: Indirectly, via the Lifecycle Manager each adoption produces
  - pkg/metrics: Reconciliation pass duration and auto-restart count
  - cmd/flowd: Runs one Reconcile pass before opening the listener, then Start

# Design Patterns

Level-Triggered Convergence:
  - Each pass re-derives what should exist from what is persisted,
    rather than reacting to an edge (a flow just appearing)
  - A missed or delayed cycle still converges correctly on the next one

Idempotent Pass:
  - Calling Reconcile twice in a row adopts nothing new the second time
  - Makes the periodic safety-net loop safe to run indefinitely

# See Also

  - pkg/flowregistry for the registry being converged against
  - pkg/flowstore for the persisted documents and checkpoints driving each pass
*/
package reconciler
