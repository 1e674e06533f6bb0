package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	common "github.com/actual-software/chat-bridge/pkg/common/config"
)

// NewLogger builds the process logger. Quiet mode returns a no-op logger.
func NewLogger(level string, quiet bool, loggingConfig *common.LoggingConfig) (*zap.Logger, error) {
	if quiet {
		return zap.NewNop(), nil
	}

	if loggingConfig == nil {
		loggingConfig = &common.LoggingConfig{}
	}

	if level == "" {
		level = loggingConfig.Level
	}

	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	outputPaths := []string{loggingConfig.Output}
	if loggingConfig.Output == "" {
		outputPaths = []string{"stderr"} // stdout carries chat messages
	}

	encoding := loggingConfig.Format
	if encoding == "" {
		encoding = "json"
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if loggingConfig.IncludeCaller {
		config.EncoderConfig.CallerKey = "caller"
		config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	} else {
		config.DisableCaller = true
	}

	if loggingConfig.Sampling.Enabled {
		config.Sampling = &zap.SamplingConfig{
			Initial:    loggingConfig.Sampling.Initial,
			Thereafter: loggingConfig.Sampling.Thereafter,
		}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger.With(zap.String(FieldService, ServiceName)), nil
}
