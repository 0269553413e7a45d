// Copyright © 2018 One Concern

package repodata

import (
	jsoniter "github.com/json-iterator/go"
)

const (
	// DefaultBufferSize of the streaming reader and writer
	DefaultBufferSize = 32 * 1024
	minBufferSize     = 16
)

// Options of the streaming engine
type Options struct {
	Indent     int
	BufferSize int
}

// Option tunes the streaming engine
type Option func(*Options)

// WithIndent writes pretty-printed documents, indented by n spaces per level
func WithIndent(n int) Option {
	return func(o *Options) {
		if n < 0 {
			n = 0
		}
		o.Indent = n
	}
}

// Compact writes documents without any insignificant whitespace. This is the default.
func Compact() Option {
	return WithIndent(0)
}

// WithBufferSize sets the size of the read and write buffers
func WithBufferSize(n int) Option {
	return func(o *Options) {
		if n < minBufferSize {
			n = minBufferSize
		}
		o.BufferSize = n
	}
}

func defaultOptions(opts []Option) Options {
	o := Options{BufferSize: DefaultBufferSize}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

func (o Options) api() jsoniter.API {
	return jsoniter.Config{
		IndentionStep: o.Indent,
	}.Froze()
}
