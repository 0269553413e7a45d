// Copyright © 2018 One Concern

package transform

import (
	"github.com/oneconcern/condarepo/pkg/metrics"
	"github.com/oneconcern/condarepo/pkg/repodata"
	"go.uber.org/zap"
)

// DefaultBufferSize of the pipes between the store and the editing function
const DefaultBufferSize = 64 * 1024

// Option for the Transformer
type Option func(*Transformer)

// WithBufferSize bounds the buffer of each pipe
func WithBufferSize(n int) Option {
	return func(t *Transformer) {
		if n > 0 {
			t.bufferSize = n
		}
	}
}

// Logger for the Transformer
func Logger(l *zap.Logger) Option {
	return func(t *Transformer) {
		if l != nil {
			t.l = l
		}
	}
}

// IndexOptions are passed on to the repodata engine by Merge and Remove
func IndexOptions(opts ...repodata.Option) Option {
	return func(t *Transformer) {
		t.indexOpts = append(t.indexOpts, opts...)
	}
}

// Metrics collects transform timings and entry counts
func Metrics(m *metrics.Metrics) Option {
	return func(t *Transformer) {
		t.m = m
	}
}
