// Copyright © 2018 One Concern

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Option defines some options to the metrics initialization
type Option func(*settings)

type settings struct {
	namespace string
	registry  *prometheus.Registry
	runtime   bool
}

func defaultSettings() *settings {
	return &settings{
		namespace: "condarepo",
		runtime:   true,
	}
}

// WithNamespace prefixes all metric names
func WithNamespace(namespace string) Option {
	return func(s *settings) {
		s.namespace = namespace
	}
}

// WithRegistry registers the metrics on an existing registry
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *settings) {
		s.registry = registry
	}
}

// WithoutRuntime skips the go runtime and process collectors
func WithoutRuntime() Option {
	return func(s *settings) {
		s.runtime = false
	}
}
