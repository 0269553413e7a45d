// Copyright © 2018 One Concern

package web

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/condarepo/pkg/archive"
	archivestatus "github.com/oneconcern/condarepo/pkg/archive/status"
	"github.com/oneconcern/condarepo/pkg/auth"
	"github.com/oneconcern/condarepo/pkg/repodata"
	repostatus "github.com/oneconcern/condarepo/pkg/repodata/status"
	"github.com/oneconcern/condarepo/pkg/storage"
	"github.com/oneconcern/condarepo/pkg/storage/status"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// segments of a request path, without empty parts
func segments(p string) []string {
	return strings.FieldsFunc(path.Clean("/"+p), func(r rune) bool { return r == '/' })
}

// packageKey locates a package from the last two parts of a path: <subdir>/<filename>
func packageKey(p string) (key, subdir, file string, ok bool) {
	parts := segments(p)
	if len(parts) < 2 {
		return "", "", "", false
	}
	subdir, file = parts[len(parts)-2], parts[len(parts)-1]
	if _, err := repodata.SectionOf(file); err != nil {
		return "", "", "", false
	}
	return subdir + "/" + file, subdir, file, true
}

func isPackage(p string) bool {
	_, err := repodata.SectionOf(p)
	return err == nil
}

// indexKey locates the index of a subdir from a path ending with repodata.json
func indexKey(p string) string {
	parts := segments(p)
	if len(parts) < 2 {
		return indexName
	}
	return parts[len(parts)-2] + "/" + indexName
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	switch {
	case strings.HasSuffix(p, "authentication-type"):
		writeJSON(w, http.StatusOK, map[string]string{"authentication_type": "password"})
	case strings.HasSuffix(p, "/"+indexName):
		s.basicAuth(s.serveIndex(p)).ServeHTTP(w, r)
	case isPackage(p) && strings.HasPrefix(p, "/dist/"):
		s.tokenAuth(s.servePackage(p)).ServeHTTP(w, r)
	case isPackage(p):
		s.basicAuth(s.servePackage(p)).ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleTokenGet serves requests authenticated by a token in the path: /t/{token}/...
func (s *Server) handleTokenGet(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")
	switch {
	case path.Base(p) == indexName:
		s.serveIndex(p).ServeHTTP(w, r)
	case isPackage(p):
		s.servePackage(p).ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	switch {
	case strings.HasSuffix(p, "authentications"):
		s.basicAuth(http.HandlerFunc(s.generateToken)).ServeHTTP(w, r)
	case isPackage(p):
		s.tokenAuth(s.upload(p)).ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	switch {
	case strings.HasSuffix(p, "authentications"):
		s.revokeToken(w, r)
	case isPackage(p):
		s.tokenAuth(s.deletePackage(p)).ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

// serveIndex streams an index document. A subdir without packages has an empty index.
func (s *Server) serveIndex(p string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := indexKey(p)
		rc, err := s.store.Get(r.Context(), key)
		if err != nil && !errors.Is(err, status.ErrNotExists) {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
		if err != nil {
			_, _ = io.WriteString(w, "{}")
			return
		}
		defer func() { _ = rc.Close() }()
		if _, err = io.Copy(w, rc); err != nil {
			s.l.Warn("index download interrupted", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *Server) servePackage(p string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, _, file, ok := packageKey(p)
		if !ok {
			http.NotFound(w, r)
			return
		}
		rc, err := s.store.Get(r.Context(), key)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		defer func() { _ = rc.Close() }()
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file}))
		if _, err = io.Copy(w, rc); err != nil {
			s.l.Warn("package download interrupted", zap.String("key", key), zap.Error(err))
		}
	}
}

// upload stages a package, adds its metadata to the index of its subdir, then publishes it
func (s *Server) upload(p string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, subdir, file, ok := packageKey(p)
		if !ok {
			http.Error(w, "a package is uploaded to /<subdir>/<filename>", http.StatusBadRequest)
			return
		}
		stage := path.Join(uploadStage, key)
		for _, k := range []string{key, stage} {
			exists, err := s.store.Has(ctx, k)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			if exists {
				http.Error(w, "package "+key+" exists already", http.StatusBadRequest)
				return
			}
		}

		body := &countingReader{r: r.Body}
		if err := s.store.Put(ctx, stage, body, storage.NoOverWrite); err != nil {
			s.m.Upload(body.n, err)
			s.fail(w, r, err)
			return
		}
		err := s.publish(ctx, stage, key, subdir, file)
		s.m.Upload(body.n, err)
		if err != nil {
			if derr := s.store.Delete(context.WithoutCancel(ctx), stage); derr != nil {
				s.l.Warn("could not remove staged upload", zap.String("key", stage), zap.Error(derr))
			}
			s.fail(w, r, err)
			return
		}
		user, _ := auth.FromContext(ctx)
		s.l.Info("package uploaded", zap.String("key", key), zap.String("user", user.Name), zap.Int64("size", body.n))
		w.WriteHeader(http.StatusCreated)
	}
}

func (s *Server) publish(ctx context.Context, stage, key, subdir, file string) error {
	rc, err := s.store.Get(ctx, stage)
	if err != nil {
		return err
	}
	metadata, err := archive.Metadata(file, rc)
	_ = rc.Close()
	if err != nil {
		return err
	}

	batch := repodata.NewBatch()
	if err = batch.Add(file, metadata); err != nil {
		return err
	}
	index := path.Join(subdir, indexName)
	if err = s.transformer.Merge(ctx, index, batch); err != nil {
		return err
	}
	if err = s.store.Move(ctx, stage, key); err != nil {
		s.unlist(ctx, index, key, metadata)
		return err
	}
	return nil
}

// unlist removes the index entry of a package which could not be published
func (s *Server) unlist(ctx context.Context, index, key string, metadata []byte) {
	sum, err := repodata.Entry{Metadata: metadata}.Checksum()
	if err == nil {
		err = s.transformer.Remove(context.WithoutCancel(ctx), index, repodata.NewChecksums(sum))
	}
	if err != nil {
		s.l.Error("index lists a package which could not be stored",
			zap.String("index", index), zap.String("key", key), zap.Error(err))
		return
	}
	s.l.Warn("package unlisted after a failed upload", zap.String("index", index), zap.String("key", key))
}

// deletePackage removes a package and its index entry, located by checksum
func (s *Server) deletePackage(p string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, subdir, file, ok := packageKey(p)
		if !ok {
			http.NotFound(w, r)
			return
		}
		index := path.Join(subdir, indexName)

		entry, indexed, err := s.lookup(ctx, index, file)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		exists, err := s.store.Has(ctx, key)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !indexed && !exists {
			http.NotFound(w, r)
			return
		}

		if indexed {
			sum, err := entry.Checksum()
			if err != nil {
				s.fail(w, r, err)
				return
			}
			if sum == "" {
				http.Error(w, "index entry of "+file+" has no checksum", http.StatusConflict)
				return
			}
			if err = s.transformer.Remove(ctx, index, repodata.NewChecksums(sum)); err != nil {
				s.fail(w, r, err)
				return
			}
		}
		if exists {
			if err = s.store.Delete(ctx, key); err != nil {
				s.fail(w, r, err)
				return
			}
		}
		user, _ := auth.FromContext(ctx)
		s.l.Info("package deleted", zap.String("key", key), zap.String("user", user.Name))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) lookup(ctx context.Context, index, file string) (repodata.Entry, bool, error) {
	rc, err := s.store.Get(ctx, index)
	if errors.Is(err, status.ErrNotExists) {
		return repodata.Entry{}, false, nil
	}
	if err != nil {
		return repodata.Entry{}, false, err
	}
	defer func() { _ = rc.Close() }()
	return repodata.Lookup(rc, file)
}

// generateToken hands out the valid token of the user, or a new one
func (s *Server) generateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := auth.FromContext(ctx)
	item, ok, err := s.tokens.Find(ctx, user.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		if item, err = s.tokens.Generate(ctx, user.Name, s.tokenTTL); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": item.Token})
}

func (s *Server) revokeToken(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.Token(r)
	if !ok {
		challenge(w, "Bearer")
		return
	}
	removed, err := s.tokens.Revoke(r.Context(), token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !removed {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"login":     user.Name,
		"name":      user.Name,
		"user_type": "user",
	})
}

func writeJSON(w http.ResponseWriter, code int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(value)
}

// fail answers with the status matching an error
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, status.ErrNotExists):
		code = http.StatusNotFound
	case errors.Is(err, status.ErrExists),
		errors.Is(err, repostatus.ErrInvalidPackageName),
		errors.Is(err, archivestatus.ErrInvalidArchive),
		errors.Is(err, archivestatus.ErrNoIndex),
		errors.Is(err, archivestatus.ErrUnsupported):
		code = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		code = 499
	}
	if code >= http.StatusInternalServerError {
		s.l.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.l.Debug("request rejected", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	http.Error(w, err.Error(), code)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
