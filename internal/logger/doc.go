// Package logger wraps zap for the uploader:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing for the --log-level flag,
//   - convenience functions (Info, InfoKV, ErrorKV, etc.).
//
// Services take a context and pull the logger out of it, so every upload
// cycle logs under its own name and fields.
package logger
