package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerArgs struct {
	Dev      bool   `arg:"--dev,env:DEV" default:"false" json:"dev,omitempty"`
	LogLevel string `arg:"--log-level,env:LOG_LEVEL" default:"info" json:"log_level,omitempty"`
}

// New builds the process logger and installs it as the zap global.
func New(args LoggerArgs) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error
	if args.Dev {
		logger, err = zap.NewDevelopment()
	} else {
		config := zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
		if args.LogLevel != "" {
			var level zapcore.Level
			if perr := level.UnmarshalText([]byte(args.LogLevel)); perr != nil {
				return nil, fmt.Errorf("invalid log level %q: %v", args.LogLevel, perr)
			}
			config.Level = zap.NewAtomicLevelAt(level)
		}
		logger, err = config.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zap.ErrorLevel),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to construct logger: %v", err)
	}
	_ = zap.ReplaceGlobals(logger)
	return logger, nil
}
