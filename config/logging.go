package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// NewLogger returns a development logger writing to <dataDir>/debug.log when
// BOTCHAT_DEBUG is set, and a no-op logger otherwise.
func NewLogger(dataDir string) (*zap.Logger, error) {
	if !CheckDebug() {
		return zap.NewNop(), nil
	}

	logPath := filepath.Join(dataDir, "debug.log")

	// debug.log may contain request metadata; keep it owner-only
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log at %s: %w", logPath, err)
	}
	f.Close()

	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{logPath}
	cfg.ErrorOutputPaths = []string{logPath}
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger.Debug("debug logging started", zap.String("path", logPath))
	return logger, nil
}
