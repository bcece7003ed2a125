package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide sugared logger. It is safe to use from any
// goroutine after Initialize has been called.
var Logger *zap.SugaredLogger

func Initialize(verbose bool) {
	Logger = buildLogger(verbose, "").Sugar()
}

// InitializeWithLogFile configures the global logger to write both to the
// console and to the given log file, creating its parent directory if needed.
func InitializeWithLogFile(verbose bool, logFile string) error {
	if logFile == "" {
		Initialize(verbose)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return err
	}
	Logger = buildLogger(verbose, logFile).Sugar()
	return nil
}

func Release() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func buildLogger(verbose bool, logFile string) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.OutputPaths = []string{"stderr"}
	if logFile != "" {
		config.OutputPaths = append(config.OutputPaths, logFile)
	}
	logger, err := config.Build()
	if err != nil {
		// The fallback logger cannot fail to build
		logger = zap.NewNop()
	}
	return logger
}
