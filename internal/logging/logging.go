package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/config"
)

// New builds the process logger: JSON to stdout, plus a rotating file sink
// when logging.file is configured.
func New(cfg *config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Logging.Level != "" {
		if err := level.Set(cfg.Logging.Level); err != nil {
			return nil, err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level),
	}
	if cfg.Logging.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(rotating), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
