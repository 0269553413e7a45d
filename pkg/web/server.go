// Copyright © 2018 One Concern

// Package web serves a conda channel over HTTP.
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/oneconcern/condarepo/pkg/auth"
	"github.com/oneconcern/condarepo/pkg/metrics"
	"github.com/oneconcern/condarepo/pkg/storage"
	"github.com/oneconcern/condarepo/pkg/tokens"
	"github.com/oneconcern/condarepo/pkg/transform"
	"go.uber.org/zap"
)

const (
	// DefaultTokenTTL is the validity of tokens issued by the server
	DefaultTokenTTL = 365 * 24 * time.Hour

	uploadStage = ".upload"
	indexName   = "repodata.json"
)

// Server of a conda channel
type Server struct {
	transformer *transform.Transformer
	store       storage.Store
	tokens      tokens.Tokens
	users       auth.Users
	anonymous   bool
	tokenTTL    time.Duration
	l           *zap.Logger
	m           *metrics.Metrics
}

// New channel server. Packages and indexes are stored by the transformer's store.
func New(t *transform.Transformer, tkns tokens.Tokens, users auth.Users, opts ...Option) *Server {
	s := &Server{
		transformer: t,
		store:       t.Store(),
		tokens:      tkns,
		users:       users,
		tokenTTL:    DefaultTokenTTL,
		l:           zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Handler routes the requests of conda clients
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Head("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.m != nil {
		r.Method(http.MethodGet, "/metrics", s.m.Handler())
	}

	r.With(s.tokenAuth).Get("/user", s.handleUser)
	r.Get("/t/{token}/*", s.tokenAuth(http.HandlerFunc(s.handleTokenGet)).ServeHTTP)
	r.Get("/*", s.handleGet)
	r.Post("/*", s.handlePost)
	r.Delete("/*", s.handleDelete)

	return r
}
