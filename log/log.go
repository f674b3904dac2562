// Package log holds the process-wide structured logger.
package log

import (
	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is replaced by Setup at startup. The no-op default keeps packages
// usable from tests without any logging configuration.
var Logger = zap.NewNop()

// Setup builds Logger for the given level ("debug", "info", ...). Dev mode
// switches to the human readable console encoder.
func Setup(level string, devMode bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", level)
	}

	var cfg zap.Config
	if devMode {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return errors.Wrap(err, "build logger")
	}

	Logger = logger.Named("deskfolio")
	return nil
}

// Sync flushes buffered entries, ignoring the error zap reports for
// non-syncable outputs such as a terminal.
func Sync() {
	_ = Logger.Sync()
}
