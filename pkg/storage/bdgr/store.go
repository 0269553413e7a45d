// Copyright © 2018 One Concern

// Package bdgr implements a storage.Store on an embedded badger database,
// for single node channels.
package bdgr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v3"
	"github.com/oneconcern/condarepo/pkg/errors"
	"github.com/oneconcern/condarepo/pkg/storage"
	"github.com/oneconcern/condarepo/pkg/storage/status"
	"go.uber.org/zap"
)

const (
	// MaxObjectSize held by a single badger value
	MaxObjectSize = 512 * 1024 * 1024

	retryInterval = 10 * time.Millisecond
	maxRetries    = 100
)

// Option for the badger store
type Option func(*kvStore)

// Logger for the store and the database
func Logger(l *zap.Logger) Option {
	return func(s *kvStore) {
		if l != nil {
			s.l = l
		}
	}
}

// InMemory runs the database without persistence
func InMemory() Option {
	return func(s *kvStore) {
		s.inMemory = true
	}
}

// Store is a storage.Store which must be closed after use
type Store interface {
	storage.Store
	io.Closer
}

// New opens (or creates) a badger database in the path directory
func New(path string, opts ...Option) (Store, error) {
	s := &kvStore{path: path, l: zap.NewNop()}
	for _, apply := range opts {
		apply(s)
	}

	options := badger.DefaultOptions(path).
		WithLogger(badgerLogger{s.l.Sugar()}).
		WithLoggingLevel(badger.WARNING)
	if s.inMemory {
		options = options.WithDir("").WithValueDir("").WithInMemory(true)
	} else if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("badger store: mkdir: %w", err)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(fmt.Errorf("open badger store: %w", err))
	}
	s.db = db
	return s, nil
}

type kvStore struct {
	path     string
	inMemory bool
	db       *badger.DB
	l        *zap.Logger
}

func (s *kvStore) String() string {
	if s.inMemory {
		return "badger@memory"
	}
	return "badger@" + s.path
}

func (s *kvStore) Close() error {
	return s.db.Close()
}

func (s *kvStore) Has(_ context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, e := txn.Get([]byte(storage.CleanKey(key)))
		return e
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, status.ErrStorageAPI.Wrap(err)
	}
	return true, nil
}

func (s *kvStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, e := txn.Get([]byte(storage.CleanKey(key)))
		if e != nil {
			return e
		}
		value, e = item.ValueCopy(nil)
		return e
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, status.ErrNotExists.WrapMessage(key)
		}
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return io.NopCloser(bytes.NewReader(value)), nil
}

// Put reads the whole object before writing it in a single transaction
func (s *kvStore) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	key = storage.CleanKey(key)
	if key == "" {
		return status.ErrInvalidResource.WrapMessage("empty key")
	}
	value, err := io.ReadAll(io.LimitReader(source, MaxObjectSize+1))
	if err != nil {
		return fmt.Errorf("reading object %q: %w", key, err)
	}
	if len(value) > MaxObjectSize {
		return status.ErrObjectTooBig.WrapMessage(key)
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		if exclusive {
			_, e := txn.Get([]byte(key))
			if e == nil {
				return status.ErrExists.WrapMessage(key)
			}
			if !errors.Is(e, badger.ErrKeyNotFound) {
				return e
			}
		}
		return txn.Set([]byte(key), value)
	})
}

func (s *kvStore) Delete(ctx context.Context, key string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte(storage.CleanKey(key)))
	})
}

// Move renames an object within a single transaction
func (s *kvStore) Move(ctx context.Context, from, to string) error {
	from, to = storage.CleanKey(from), storage.CleanKey(to)
	return s.update(ctx, func(txn *badger.Txn) error {
		item, e := txn.Get([]byte(from))
		if e != nil {
			if errors.Is(e, badger.ErrKeyNotFound) {
				return status.ErrNotExists.WrapMessage(from)
			}
			return e
		}
		value, e := item.ValueCopy(nil)
		if e != nil {
			return e
		}
		if e = txn.Set([]byte(to), value); e != nil {
			return e
		}
		return txn.Delete([]byte(from))
	})
}

func (s *kvStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(storage.CleanKey(prefix))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return keys, nil
}

// update runs a read-write transaction, retried on conflicts with a concurrent transaction
func (s *kvStore) update(ctx context.Context, fn func(*badger.Txn) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), maxRetries),
		ctx,
	)
	return backoff.Retry(func() error {
		err := s.db.Update(fn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, badger.ErrConflict):
			s.l.Debug("badger transaction conflict, retrying")
			return err
		case errors.Is(err, status.ErrExists), errors.Is(err, status.ErrNotExists):
			return backoff.Permanent(err)
		default:
			return backoff.Permanent(status.ErrStorageAPI.Wrap(err))
		}
	}, policy)
}

// badgerLogger adapts zap to the badger.Logger interface
type badgerLogger struct {
	*zap.SugaredLogger
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.Warnf(format, args...)
}
