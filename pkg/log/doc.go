// Package log records a machine-readable trace of everything the
// provisioning core does against the supplicant and the access point.
//
// The trace is separate from operational logging (slog): operational logs
// explain what the daemon decided, the trace records each command exchange,
// each supplicant notification, and each state transition so a failed
// provisioning attempt can be replayed afterwards.
//
// # Basic Usage
//
//	// Development: trace to the console
//	trace := log.NewSlogAdapter(slog.Default())
//
//	// Production: append to a binary file
//	trace, _ := log.NewFileLogger("/var/lib/wifiprov/trace.wlog")
//
//	// Both
//	trace := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fileLogger)
//
// # Event Types
//
//   - Command: one request/response exchange (CommandEvent)
//   - Event: one supplicant notification (NotifyEvent)
//   - State changes of the listener link, connect attempts, the access
//     point and provisioning sessions (StateChangeEvent)
//   - Errors (ErrorEventData)
//
// Passphrases and derived keys never enter the trace.
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events with integer keys, by
// convention with the .wlog extension. The wifiprov-log tool views them.
package log
