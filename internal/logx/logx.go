// Package logx holds the engine-wide logger. When STORAGE_ENGINE_LOG_DIR is
// set, log output goes to storage.log in that directory; otherwise stderr.
package logx

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const logDirEnv = "STORAGE_ENGINE_LOG_DIR"

var (
	once   sync.Once
	logger *logrus.Logger
)

// L returns the shared logger, building it on first use.
func L() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
		logger.SetOutput(resolveOutput())
	})
	return logger
}

// SetLevel adjusts the shared logger's level by name ("debug", "info",
// "warn", "error"). Unknown names are ignored.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		L().SetLevel(lvl)
	}
}

func resolveOutput() io.Writer {
	dir := os.Getenv(logDirEnv)
	if dir == "" {
		return os.Stderr
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return os.Stderr
	}
	f, err := os.OpenFile(filepath.Join(dir, "storage.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stderr
	}
	return f
}
