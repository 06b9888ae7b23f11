package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger that writes JSON to chatsyncd.log under the
// runtime dir and mirrors to stderr. Viewer ID and PID are attached as
// initial fields.
func New(runtimeDir, viewerID string) (*zap.Logger, error) {
	if err := os.MkdirAll(runtimeDir, 0700); err != nil {
		return nil, err
	}

	logPath := filepath.Join(runtimeDir, "chatsyncd.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), zapcore.InfoLevel)
	stderrCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), zapcore.InfoLevel)

	logger := zap.New(zapcore.NewTee(fileCore, stderrCore),
		zap.Fields(
			zap.String("viewer", viewerID),
			zap.Int("pid", os.Getpid()),
		),
	)
	return logger, nil
}
