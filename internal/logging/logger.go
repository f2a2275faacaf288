package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dhernos/dynpages/internal/config"
)

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds the process logger. Production uses JSON lines; development a
// console encoder. When a log file is configured, output is tee'd into it.
// The returned closer releases the file and must be called on shutdown.
func New(cfg config.Config) (*zap.Logger, io.Closer, error) {
	lvl := levelFromString(cfg.Log.Level)

	var encoder zapcore.Encoder
	if cfg.Production() {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), lvl)}
	var closer io.Closer = nopCloser{}

	if cfg.Log.File != "" {
		w, err := NewRotatingFileWriter(cfg.Log.File, cfg.Log.MaxAge)
		if err != nil {
			return nil, nil, err
		}
		fileEncoderCfg := zap.NewProductionEncoderConfig()
		fileEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderCfg), zapcore.AddSync(w), lvl))
		closer = w
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(zapcore.NewTee(cores...), opts...), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
