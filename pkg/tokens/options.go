// Copyright © 2018 One Concern

package tokens

import (
	"time"

	"github.com/oneconcern/condarepo/pkg/metrics"
	"go.uber.org/zap"
)

// Option for a store of tokens
type Option func(*storeTokens)

// Key of the token document
func Key(key string) Option {
	return func(s *storeTokens) {
		if key != "" {
			s.key = key
		}
	}
}

// Clock used to stamp and check expiry
func Clock(now func() time.Time) Option {
	return func(s *storeTokens) {
		if now != nil {
			s.now = now
		}
	}
}

// Logger for the store
func Logger(l *zap.Logger) Option {
	return func(s *storeTokens) {
		if l != nil {
			s.l = l
		}
	}
}

// Metrics counts generated, revoked and expired tokens
func Metrics(m *metrics.Metrics) Option {
	return func(s *storeTokens) {
		s.m = m
	}
}
