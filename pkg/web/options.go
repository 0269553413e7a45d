// Copyright © 2018 One Concern

package web

import (
	"time"

	"github.com/oneconcern/condarepo/pkg/metrics"
	"go.uber.org/zap"
)

// Option for the server
type Option func(*Server)

// Logger for the server
func Logger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.l = l
		}
	}
}

// Metrics of the server, exposed at /metrics
func Metrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.m = m
	}
}

// Anonymous disables authentication: every request is made by the anonymous user
func Anonymous(enabled bool) Option {
	return func(s *Server) {
		s.anonymous = enabled
	}
}

// TokenTTL sets the validity of issued tokens
func TokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}
