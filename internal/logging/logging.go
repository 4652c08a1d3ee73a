package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger: JSON in production, colored console
// output otherwise.
func New(env string) (*zap.Logger, error) {
	var config zap.Config
	if env == "production" || env == "prod" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.OutputPaths = []string{"stdout"}
	return config.Build()
}

// Must is New for entrypoints that cannot continue without a logger.
func Must(env string) *zap.Logger {
	logger, err := New(env)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return logger
}
