/*
Package log provides structured logging for shardmaild using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

shardmaild's logging system provides structured JSON logging with minimal overhead:

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
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("cluster")                 │          │
	│  │  - WithNodeID("3")                          │          │
	│  │  - WithAccount(accountID)                   │          │
	│  │  - WithCollection(collection)               │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "cluster",                  │          │
	│  │    "time": "2026-07-30T10:30:00Z",         │          │
	│  │    "message": "election won"                │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF election won component=cluster │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all shardmaild packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithNodeID: Add this node's peer id
  - WithAccount: Add the replicated account id a log line concerns
  - WithCollection: Add the JMAP collection a log line concerns

# Usage

Initializing the Logger:

	import "github.com/cuemby/shardmail/pkg/log"

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

	log.Info("node 3 won the election for term 7")
	log.Debug("checking peer reachability")
	log.Warn("peer 2 missed its heartbeat")
	log.Error("failed to apply log entry")
	log.Fatal("cannot start without a data directory")

Structured Logging:

	log.Logger.Info().
		Uint64("peer_id", 3).
		Uint64("term", 7).
		Msg("became leader")

	log.Logger.Error().
		Err(err).
		Uint32("account_id", accountID).
		Msg("apply update payload failed")

Context Loggers:

	// Per-account and per-collection context, combined the same way
	// WithComponent does: call the helper, then chain .With() for
	// additional fields on the logger it returns.
	entryLog := log.WithAccount(accountID).With().
		Uint8("collection", uint8(collection)).Logger()
	entryLog.Error().Err(err).Msg("failed to apply log entry")

# Integration Points

This package integrates with:

  - pkg/cluster: Logs election, append-entries, and step-down events
  - cmd/shardmaild: Logs document-update apply failures, tagged by
    account/collection, and metrics-server errors; startup and shutdown
    messages are printed to stdout, not logged

# Security

Log Content:
  - Never log secrets or sensitive data
  - The cluster encryption key and CA private keys are never logged
  - Review logs before sharing externally

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
*/
package log
