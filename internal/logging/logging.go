// Package logging builds the process wide zap logger.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a development logger for dev/test environments and a JSON
// production logger otherwise.  The logger is also installed as the zap
// global so packages without an injected logger still log consistently.
func New(env string) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	switch strings.ToLower(env) {
	case "dev", "development", "local", "test":
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		log, err = cfg.Build()
	default:
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		log, err = cfg.Build()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}
