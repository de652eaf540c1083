// Package logging provides structured logging for mqtt2file.
//
// This package wraps Go's standard log/slog package so that one logger is
// built at process start and handed to every component, instead of each
// component reaching for a process-wide default.
//
// # Configuration
//
//	logging:
//	  level: "warn"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// Every -v on the command line raises the configured level by one step
// (error → warn → info → debug), see Raise.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version, os.Stderr)
//	loopLog := logger.With("component", "loop")
//	loopLog.Info("waiting for messages", "until", deadline)
package logging
