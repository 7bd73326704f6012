// Package logx configures autonotice's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// Components receive a Logger, usually derived with
// With(logx.String("comp", ...)), and never touch zerolog directly. The
// Service owns the sinks and can re-apply level/output changes at runtime
// without invalidating loggers already handed out.
package logx
