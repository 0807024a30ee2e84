package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const appName = "tener"

// New builds the process logger. Debug mode also records stack traces of
// warnings and errors.
func New(json bool, debug bool) (*zap.Logger, error) {
	cfg := zap.Config{
		Encoding:          "console",
		Level:             zap.NewAtomicLevelAt(zapcore.InfoLevel),
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		EncoderConfig:     encoderConfig(),
		DisableStacktrace: true,
	}
	if json {
		cfg.Encoding = "json"
		cfg.InitialFields = map[string]any{"app": appName}
	}
	if debug {
		cfg.Level.SetLevel(zapcore.DebugLevel)
		cfg.DisableStacktrace = false
		cfg.EncoderConfig.StacktraceKey = "stacktrace"
	}

	return cfg.Build()
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey: "step",

		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,

		TimeKey:    "time",
		EncodeTime: zapcore.RFC3339TimeEncoder,

		CallerKey:    "caller",
		EncodeCaller: zapcore.ShortCallerEncoder,

		EncodeDuration: zapcore.StringDurationEncoder,
	}
}
