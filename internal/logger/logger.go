package logger

import (
	"go.uber.org/zap"
)

// New creates a logger for the given environment.
// Production gets JSON output at info level, everything else the development console encoder.
func New(environment string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, err
	}

	return logger, nil
}
