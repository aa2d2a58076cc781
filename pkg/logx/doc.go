// Package logx configures powerwatch's structured logging.
//
// Components receive a logx.Logger (a thin wrapper over zerolog) and derive
// child loggers with With(). The Service behind it owns the sinks:
//   - Console output (pretty or JSON)
//   - Optional append-only file (JSON lines)
//   - Optional alert chat on Telegram (min-level + rate limiting)
package logx
