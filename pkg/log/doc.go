/*
Package log provides structured logging for the Flow Runtime using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support
filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("flow")                    │          │
	│  │  - WithFlowID("flow-abc123")                │          │
	│  │  - WithElementID("element-xyz")             │          │
	│  │  - WithFactory("videomixer")                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "flow",                     │          │
	│  │    "time": "2026-07-29T10:30:00Z",          │          │
	│  │    "message": "flow started"                │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF flow started component=flow    │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from every package in this module
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithFlowID: Add flow ID context
  - WithElementID: Add element ID context
  - WithFactory: Add factory name context

# Usage

Initializing the Logger:

	import "github.com/flowforge/runtime/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("runtime started")
	log.Debug("checking pipeline state")
	log.Warn("deferred link did not resolve before deadline")
	log.Error("failed to connect bus watcher")
	log.Fatal("cannot start without storage") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("flow_id", "flow-123").
		Str("state", "running").
		Msg("flow started")

	log.Logger.Error().
		Err(err).
		Str("element_id", "src-0").
		Msg("element property write failed")

Component Loggers:

	flowLog := log.WithFlowID("flow-123")
	flowLog.Info().Msg("pipeline built")
	flowLog.Debug().Str("element_id", "src-0").Msg("element added")

	elementLog := log.WithComponent("registry").
		With().Str("factory", "videomixer").Logger()
	elementLog.Info().Msg("property introspection complete")

# Integration Points

This package integrates with:

  - pkg/flow: Logs lifecycle transitions and bus-derived errors
  - pkg/pipeline: Logs build failures and fan-out insertion
  - pkg/reconciler: Logs startup adoption and auto-restart decisions
  - pkg/api: Logs HTTP requests and event-stream connections
  - pkg/registry: Logs introspection failures caught by the panic guard

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (flow ID, element ID, factory name)

Don't:
  - Log secrets or sensitive data
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
