// Copyright © 2018 One Concern

// Package transform edits documents held by a store in a single streaming pass.
//
// A transform reads the current object, pipes it through an editing function and
// uploads the result under a temporary key, all concurrently. Only a successful
// transform promotes the temporary object over the original one.
package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oneconcern/condarepo/pkg/metrics"
	"github.com/oneconcern/condarepo/pkg/repodata"
	"github.com/oneconcern/condarepo/pkg/storage"
	"github.com/oneconcern/condarepo/pkg/storage/status"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EditFunc reads a document and writes its replacement.
//
// existing is nil when the document does not exist yet.
type EditFunc func(existing io.Reader, out io.Writer) error

// errEditDone tells the producer that the editing function no longer reads its input
var errEditDone = errors.New("edit completed")

// Transformer applies edits to objects of a store.
//
// Transforms of the same key are serialized within a Transformer; nothing guards
// against concurrent writers in other processes.
type Transformer struct {
	store      storage.Store
	bufferSize int
	indexOpts  []repodata.Option
	locks      *keyedMutex
	l          *zap.Logger
	m          *metrics.Metrics
}

// New Transformer over a store
func New(store storage.Store, opts ...Option) *Transformer {
	t := &Transformer{
		store:      store,
		bufferSize: DefaultBufferSize,
		locks:      newKeyedMutex(),
		l:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(t)
	}
	return t
}

// Store the transformer works on
func (t *Transformer) Store() storage.Store {
	return t.store
}

// TempKey names the temporary object of a transform
func TempKey(key string) string {
	return fmt.Sprintf("%s.%s.tmp", key, ksuid.New().String())
}

// Apply edits the object at key.
//
// The first failure is returned as is: an error from the editing function,
// from reading the original object, from writing the new one, or the context error.
// On failure, the original object is left untouched.
func (t *Transformer) Apply(ctx context.Context, key string, edit EditFunc) error {
	return t.apply(ctx, "apply", key, edit)
}

// Merge a batch of packages into the index document at key
func (t *Transformer) Merge(ctx context.Context, key string, batch *repodata.Batch) error {
	err := t.apply(ctx, "merge", key, func(existing io.Reader, out io.Writer) error {
		return repodata.Merge(existing, out, batch, t.indexOpts...)
	})
	if err == nil {
		t.m.Entries("merge", batch.Len())
	}
	return err
}

// Remove the packages with the given checksums from the index document at key.
//
// Removing from a missing document fails with status.ErrNotExists.
func (t *Transformer) Remove(ctx context.Context, key string, checksums repodata.Checksums) error {
	return t.apply(ctx, "remove", key, func(existing io.Reader, out io.Writer) error {
		if existing == nil {
			return status.ErrNotExists.WrapMessage(key)
		}
		return repodata.Remove(existing, out, checksums, t.indexOpts...)
	})
}

func (t *Transformer) apply(ctx context.Context, op, key string, edit EditFunc) (err error) {
	key = storage.CleanKey(key)
	start := time.Now()
	defer func() {
		t.m.Transform(op, start, err)
	}()

	unlock := t.locks.lock(key)
	defer unlock()

	source, err := t.store.Get(ctx, key)
	switch {
	case errors.Is(err, status.ErrNotExists):
		source = nil
	case err != nil:
		return err
	default:
		defer func() { _ = source.Close() }()
	}

	tmpKey := TempKey(key)
	if err = t.pipeline(ctx, source, tmpKey, edit); err != nil {
		t.discard(ctx, tmpKey)
		t.l.Debug("transform failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
		return err
	}

	if err = t.store.Move(ctx, tmpKey, key); err != nil {
		t.discard(ctx, tmpKey)
		return err
	}
	t.l.Debug("transform done", zap.String("op", op), zap.String("key", key), zap.Duration("duration", time.Since(start)))
	return nil
}

// pipeline runs the producer, the editing function and the uploader concurrently
func (t *Transformer) pipeline(ctx context.Context, source io.Reader, tmpKey string, edit EditFunc) error {
	var (
		first firstError
		in    *pipe
		input io.Reader
	)
	out := newPipe(t.bufferSize)
	pipes := []*pipe{out}
	if source != nil {
		in = newPipe(t.bufferSize)
		input = in.r
		pipes = append(pipes, in)
	}

	stop := context.AfterFunc(ctx, func() {
		first.set(ctx.Err())
		for _, p := range pipes {
			p.abort(ctx.Err())
		}
	})
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if source != nil {
		g.Go(func() error {
			_, err := io.Copy(in, source)
			if errors.Is(err, errEditDone) {
				err = nil
			}
			first.set(err)
			in.closeWrite(err)
			return err
		})
	}

	g.Go(func() error {
		err := edit(input, out)
		first.set(err)
		out.closeWrite(err)
		if in != nil {
			in.closeRead(errEditDone)
		}
		return err
	})

	g.Go(func() error {
		err := t.store.Put(gctx, tmpKey, out.r, storage.OverWrite)
		first.set(err)
		if err == nil {
			err = io.ErrClosedPipe
		}
		out.closeRead(err)
		return nil
	})

	_ = g.Wait()
	return first.get()
}

func (t *Transformer) discard(ctx context.Context, tmpKey string) {
	if err := t.store.Delete(context.WithoutCancel(ctx), tmpKey); err != nil {
		t.l.Warn("could not remove temporary object", zap.String("key", tmpKey), zap.Error(err))
	}
}

// firstError retains the root cause of a failure: a failing task records its
// error before closing the pipes which propagate it to the other tasks.
type firstError struct {
	mu  sync.Mutex
	err error
}

func (f *firstError) set(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

func (f *firstError) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
