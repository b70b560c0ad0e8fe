package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// GetLogger returns zap.Logger instance, but using singleton pattern creates only one reusable instace.
// APP_ENV=production switches to the JSON production config, LOG_LEVEL overrides the level.
func GetLogger() *zap.Logger {
	once.Do(func() {
		var err error
		logger, err = build(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
		if err != nil {
			panic("failed logger setup : " + err.Error())
		}
	})
	return logger
}

func build(env, level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if strings.EqualFold(env, "production") {
		cfg = zap.NewProductionConfig()
	}
	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}
