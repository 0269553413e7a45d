// Copyright © 2018 One Concern

package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/oneconcern/condarepo/pkg/auth"
	"go.uber.org/zap"
)

const realm = `realm="condarepo"`

// logRequests logs and counts served requests
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			s.m.Request(r.Method, route, code)
			s.l.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", code),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request-id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// tokenAuth authenticates requests with a token, taken from the path or the Authorization header
func (s *Server) tokenAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.anonymous {
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), auth.Anonymous)))
			return
		}
		token := chi.URLParam(r, "token")
		if token == "" {
			token, _ = auth.Token(r)
		}
		if token == "" {
			challenge(w, "Bearer")
			return
		}
		item, ok, err := s.tokens.Get(r.Context(), token)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !ok {
			challenge(w, "Bearer")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), auth.User{Name: item.Name})))
	})
}

// basicAuth authenticates requests with a user name and a password
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.anonymous {
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), auth.Anonymous)))
			return
		}
		name, password, ok := r.BasicAuth()
		if !ok {
			challenge(w, "Basic")
			return
		}
		user, err := s.users.Authenticate(name, password)
		if err != nil {
			s.l.Debug("authentication failed", zap.String("user", name), zap.Error(err))
			challenge(w, "Basic")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

func challenge(w http.ResponseWriter, scheme string) {
	w.Header().Set("WWW-Authenticate", scheme+" "+realm)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
