// Package api provides factory implementations for dependency injection
package api

import (
	"context"

	"github.com/sirupsen/logrus"
)

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct {
	Logger logrus.FieldLogger
}

// NewServerFactory creates a new server factory
func NewServerFactory(log logrus.FieldLogger) ServerFactory {
	return &DefaultServerFactory{Logger: log}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{logger: f.Logger}
}

// DefaultServerStarter is the default implementation of ServerStarter
type DefaultServerStarter struct {
	logger logrus.FieldLogger
}

// StartServer starts the API server with the given configuration
func (s *DefaultServerStarter) StartServer(ctx context.Context, spool TableSpool, config ServerConfig) error {
	return StartServer(ctx, spool, config, s.logger)
}
