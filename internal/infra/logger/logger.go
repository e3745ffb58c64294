package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "interactive-movie-monetization"

// New builds the process logger. Outside prod the output stays JSON but
// carries caller and stack details at warn level.
func New(level, env string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	options := []zap.Option{}
	if !strings.EqualFold(env, "prod") {
		cfg.Development = true
		options = append(options, zap.AddStacktrace(zapcore.WarnLevel))
	}

	logger, err := cfg.Build(options...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(zap.String("service", serviceName), zap.String("env", env)), nil
}
