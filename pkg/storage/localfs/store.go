// Copyright © 2018 One Concern

// Package localfs implements a storage.Store on top of an afero file system.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oneconcern/condarepo/pkg/storage"
	"github.com/oneconcern/condarepo/pkg/storage/status"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
)

// DefaultRoot of a local channel, relative to the working directory
const DefaultRoot = "channel"

// New creates a new local file system backed storage model
func New(fs afero.Fs) storage.Store {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), DefaultRoot)
	}
	return &localFS{
		fs: fs,
	}
}

type localFS struct {
	fs afero.Fs
}

func (l *localFS) Has(_ context.Context, key string) (bool, error) {
	fi, err := l.fs.Stat(storage.CleanKey(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, status.ErrStorageAPI.Wrap(err)
	}
	return !fi.IsDir(), nil
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	has, err := l.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, status.ErrNotExists.WrapMessage(key)
	}
	f, err := l.fs.Open(storage.CleanKey(key))
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return f, nil
}

func (l *localFS) ensureDir(key string) error {
	if dir := path.Dir(key); dir != "." {
		if err := l.fs.MkdirAll(dir, 0700); err != nil {
			return status.ErrStorageAPI.Wrap(fmt.Errorf("ensuring directories for %q: %w", key, err))
		}
	}
	return nil
}

func (l *localFS) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	key = storage.CleanKey(key)
	if key == "" {
		return status.ErrInvalidResource.WrapMessage("empty key")
	}
	if err := l.ensureDir(key); err != nil {
		return err
	}
	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if exclusive {
		flag |= os.O_EXCL
	}
	target, err := l.fs.OpenFile(key, flag, 0600)
	if err != nil {
		if os.IsExist(err) {
			return status.ErrExists.WrapMessage(key)
		}
		return status.ErrStorageAPI.Wrap(fmt.Errorf("create record for %q: %w", key, err))
	}
	if _, err = io.Copy(target, source); err != nil {
		_ = target.Close()
		_ = l.fs.Remove(key)
		return fmt.Errorf("write record for %q: %w", key, err)
	}
	if err = target.Close(); err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	return nil
}

func (l *localFS) Delete(_ context.Context, key string) error {
	if err := l.fs.Remove(storage.CleanKey(key)); err != nil && !os.IsNotExist(err) {
		return status.ErrStorageAPI.Wrap(fmt.Errorf("removing %q: %w", key, err))
	}
	return nil
}

func (l *localFS) Move(ctx context.Context, from, to string) error {
	from, to = storage.CleanKey(from), storage.CleanKey(to)
	has, err := l.Has(ctx, from)
	if err != nil {
		return err
	}
	if !has {
		return status.ErrNotExists.WrapMessage(from)
	}
	if err = l.ensureDir(to); err != nil {
		return err
	}
	if err = l.fs.Rename(from, to); err != nil {
		return status.ErrStorageAPI.Wrap(fmt.Errorf("moving %q to %q: %w", from, to, err))
	}
	return nil
}

func (l *localFS) Keys(_ context.Context, prefix string) ([]string, error) {
	return l.keys(prefix, nil)
}

func (l *localFS) keys(prefix string, skip func(string) bool) ([]string, error) {
	const root = "."
	prefix = strings.TrimLeft(prefix, "/")
	var res []string
	err := afero.Walk(l.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		key := filepath.ToSlash(p)
		if skip != nil && skip(key) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !strings.HasPrefix(key, prefix) {
			return nil
		}
		res = append(res, key)
		return nil
	})
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	sort.Strings(res)
	return res, nil
}

func (l *localFS) String() string {
	return describe("localfs", l.fs)
}

func describe(name string, fs afero.Fs) string {
	if base, ok := fs.(*afero.BasePathFs); ok {
		if pp, err := base.RealPath(""); err == nil {
			return name + "@" + pp
		}
	}
	return name
}

// Atomic puts go through a staging area inside the file system, then are renamed into place:
// readers never see a partially written object.
const nestedPutStageName = ".put-stage"

func maybeInvalidKey(key string) error {
	if first := strings.SplitN(storage.CleanKey(key), "/", 2)[0]; first == nestedPutStageName {
		return status.ErrInvalidResource.WrapMessage(
			fmt.Sprintf("key %q conflicts with put staging area name %q", key, nestedPutStageName))
	}
	return nil
}

// NewAtomic creates a local store where Put never exposes a partially written object
func NewAtomic(fs afero.Fs) (storage.Store, error) {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), DefaultRoot)
	}
	if err := fs.MkdirAll(nestedPutStageName, 0700); err != nil {
		return nil, fmt.Errorf("ensuring put staging directory for %q: %w", nestedPutStageName, err)
	}
	return &localFSAtomic{
		storeImpl: localFS{fs: fs},
	}, nil
}

type localFSAtomic struct {
	storeImpl localFS
}

func (l *localFSAtomic) Has(ctx context.Context, key string) (bool, error) {
	if err := maybeInvalidKey(key); err != nil {
		return false, err
	}
	return l.storeImpl.Has(ctx, key)
}

func (l *localFSAtomic) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := maybeInvalidKey(key); err != nil {
		return nil, err
	}
	return l.storeImpl.Get(ctx, key)
}

func (l *localFSAtomic) Delete(ctx context.Context, key string) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	return l.storeImpl.Delete(ctx, key)
}

func (l *localFSAtomic) Move(ctx context.Context, from, to string) error {
	if err := maybeInvalidKey(from); err != nil {
		return err
	}
	if err := maybeInvalidKey(to); err != nil {
		return err
	}
	return l.storeImpl.Move(ctx, from, to)
}

func (l *localFSAtomic) Keys(_ context.Context, prefix string) ([]string, error) {
	return l.storeImpl.keys(prefix, func(key string) bool {
		return maybeInvalidKey(key) != nil
	})
}

// Put stages the object under a unique name, then renames it into place.
//
// With exclusive set, an existing object is detected before the rename: two concurrent
// exclusive puts of the same key may both succeed, the last one wins.
func (l *localFSAtomic) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	key = storage.CleanKey(key)
	if exclusive {
		has, err := l.storeImpl.Has(ctx, key)
		if err != nil {
			return err
		}
		if has {
			return status.ErrExists.WrapMessage(key)
		}
	}
	putStageKey := path.Join(nestedPutStageName, ksuid.New().String())
	if err := l.storeImpl.Put(ctx, putStageKey, source, storage.NoOverWrite); err != nil {
		return err
	}
	if err := l.storeImpl.Move(ctx, putStageKey, key); err != nil {
		_ = l.storeImpl.Delete(ctx, putStageKey)
		return err
	}
	return nil
}

func (l *localFSAtomic) String() string {
	return describe("localfs-atomic", l.storeImpl.fs)
}
