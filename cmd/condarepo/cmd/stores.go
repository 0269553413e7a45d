// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/oneconcern/condarepo/pkg/dlogger"
	"github.com/oneconcern/condarepo/pkg/metrics"
	"github.com/oneconcern/condarepo/pkg/repodata"
	"github.com/oneconcern/condarepo/pkg/storage"
	"github.com/oneconcern/condarepo/pkg/storage/bdgr"
	"github.com/oneconcern/condarepo/pkg/storage/gcs"
	"github.com/oneconcern/condarepo/pkg/storage/localfs"
	"github.com/oneconcern/condarepo/pkg/storage/sthree"
	"github.com/oneconcern/condarepo/pkg/tokens"
	"github.com/oneconcern/condarepo/pkg/transform"
	"github.com/opentracing/opentracing-go"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// channel gathers the components working on the store of a channel
type channel struct {
	l           *zap.Logger
	m           *metrics.Metrics
	store       storage.Store
	transformer *transform.Transformer
	tokens      tokens.Tokens
	close       func() error
}

func (c *channel) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

func newStore(ctx context.Context, cfg StorageConfig, l *zap.Logger) (storage.Store, func() error, error) {
	switch cfg.Backend {
	case backendLocalFS, "":
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, nil, err
		}
		store, err := localfs.NewAtomic(afero.NewBasePathFs(afero.NewOsFs(), cfg.Path))
		return store, nil, err
	case backendS3:
		awsConfig := aws.NewConfig()
		if cfg.Region != "" {
			awsConfig = awsConfig.WithRegion(cfg.Region)
		}
		if cfg.Endpoint != "" {
			awsConfig = awsConfig.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
		}
		store, err := sthree.New(sthree.Bucket(cfg.Bucket), sthree.AWSConfig(awsConfig), sthree.Logger(l))
		return store, nil, err
	case backendGCS:
		store, err := gcs.New(ctx, cfg.Bucket, cfg.Credential, gcs.Logger(l))
		return store, nil, err
	case backendBadger:
		store, err := bdgr.New(cfg.Path, bdgr.Logger(l))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newChannel(ctx context.Context, cfg *Config) (*channel, error) {
	l, err := dlogger.GetLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	bufferSize, err := cfg.bufferSize()
	if err != nil {
		return nil, fmt.Errorf("invalid index buffer size %q: %w", cfg.Index.BufferSize, err)
	}

	store, closer, err := newStore(ctx, cfg.Storage, l)
	if err != nil {
		return nil, err
	}
	store = storage.Instrument(opentracing.GlobalTracer(), l, store)

	m := metrics.New()
	tr := transform.New(store,
		transform.Logger(l),
		transform.Metrics(m),
		transform.IndexOptions(
			repodata.WithIndent(cfg.Index.Indent),
			repodata.WithBufferSize(bufferSize),
		),
	)
	tkns := tokens.NewStore(tr, tokens.Logger(l), tokens.Metrics(m))
	if cfg.Tokens.CacheSize > 0 {
		tkns = tokens.NewCached(tkns, cfg.Tokens.CacheSize, cfg.Tokens.CacheTTL)
	}
	return &channel{
		l:           l,
		m:           m,
		store:       store,
		transformer: tr,
		tokens:      tkns,
		close:       closer,
	}, nil
}

// mustChannel opens the channel of the configuration. A nil channel is returned on failure.
func mustChannel(ctx context.Context) *channel {
	c, err := newChannel(ctx, config)
	if err != nil {
		wrapFatalln("open channel", err)
		return nil
	}
	return c
}
