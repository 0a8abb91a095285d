// Package logx configures dailyrun's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Deferred messages (DebugFn/ErrorFn) that cost nothing when the level is off
//   - An async, rate-limited error sink (ErrorAsync) that never blocks the caller
package logx
