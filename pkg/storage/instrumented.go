// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"strings"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"
	"go.uber.org/zap"
)

// Instrument decorates a store with a tracing span and a debug log line per call.
//
// A nil tracer falls back to the opentracing global tracer.
func Instrument(tr opentracing.Tracer, l *zap.Logger, store Store) Store {
	if tr == nil {
		tr = opentracing.GlobalTracer()
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &instrumentedStore{
		tr:    tr,
		store: store,
		l:     l.With(zap.String("store", store.String())),
	}
}

type instrumentedStore struct {
	store Store
	tr    opentracing.Tracer
	l     *zap.Logger
}

func (i *instrumentedStore) opName(name string) string {
	return strings.Join([]string{"storage", i.String(), name}, ".")
}

func (i *instrumentedStore) spanFromContext(ctx context.Context, name string) opentracing.Span {
	parent := opentracing.SpanFromContext(ctx)
	var span opentracing.Span
	if parent != nil {
		span = i.tr.StartSpan(name, opentracing.ChildOf(parent.Context()))
	} else {
		span = i.tr.StartSpan(name)
	}
	return span
}

// call wraps a store operation
func (i *instrumentedStore) call(ctx context.Context, op string, fields []zap.Field, fn func(context.Context) error) error {
	span := i.spanFromContext(ctx, i.opName(op))
	defer span.Finish()
	for _, f := range fields {
		span.SetTag(f.Key, f.String)
	}

	start := time.Now()
	err := fn(opentracing.ContextWithSpan(ctx, span))
	fields = append(fields, zap.Duration("duration", time.Since(start)))
	if err != nil {
		ext.Error.Set(span, true)
		span.LogFields(otlog.Error(err))
		i.l.Debug("storage "+strings.ToLower(op)+" failed", append(fields, zap.Error(err))...)
		return err
	}
	i.l.Debug("storage "+strings.ToLower(op), fields...)
	return nil
}

func (i *instrumentedStore) Has(ctx context.Context, key string) (has bool, err error) {
	err = i.call(ctx, "Has", []zap.Field{zap.String("key", key)}, func(ctx context.Context) error {
		has, err = i.store.Has(ctx, key)
		return err
	})
	return
}

func (i *instrumentedStore) Get(ctx context.Context, key string) (rdr io.ReadCloser, err error) {
	err = i.call(ctx, "Get", []zap.Field{zap.String("key", key)}, func(ctx context.Context) error {
		rdr, err = i.store.Get(ctx, key)
		return err
	})
	return
}

func (i *instrumentedStore) Put(ctx context.Context, key string, rdr io.Reader, exclusive bool) error {
	return i.call(ctx, "Put", []zap.Field{zap.String("key", key)}, func(ctx context.Context) error {
		return i.store.Put(ctx, key, rdr, exclusive)
	})
}

func (i *instrumentedStore) Delete(ctx context.Context, key string) error {
	return i.call(ctx, "Delete", []zap.Field{zap.String("key", key)}, func(ctx context.Context) error {
		return i.store.Delete(ctx, key)
	})
}

func (i *instrumentedStore) Move(ctx context.Context, from, to string) error {
	return i.call(ctx, "Move", []zap.Field{zap.String("from", from), zap.String("to", to)}, func(ctx context.Context) error {
		return i.store.Move(ctx, from, to)
	})
}

func (i *instrumentedStore) Keys(ctx context.Context, prefix string) (keys []string, err error) {
	err = i.call(ctx, "Keys", []zap.Field{zap.String("prefix", prefix)}, func(ctx context.Context) error {
		keys, err = i.store.Keys(ctx, prefix)
		return err
	})
	return
}

func (i *instrumentedStore) String() string {
	return i.store.String()
}
