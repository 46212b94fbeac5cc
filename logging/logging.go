// File: logging/logging.go
package logging

import (
	"io"

	"github.com/mattn/go-colorable"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console logger writing to w at level ("debug", "info", ...).
func New(level string, w io.Writer) (*zap.Logger, error) {
	return build(level, w, zapcore.CapitalLevelEncoder)
}

// NewTerminal builds a logger for a terminal: stderr, colored levels. The
// colors also work on Windows consoles.
func NewTerminal(level string) (*zap.Logger, error) {
	return build(level, colorable.NewColorableStderr(), zapcore.CapitalColorLevelEncoder)
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

func build(level string, w io.Writer, levelEncoder zapcore.LevelEncoder) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = levelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}
