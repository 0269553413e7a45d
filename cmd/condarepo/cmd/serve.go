// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oneconcern/condarepo/internal"
	"github.com/oneconcern/condarepo/pkg/auth"
	"github.com/oneconcern/condarepo/pkg/tokens"
	"github.com/oneconcern/condarepo/pkg/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the channel over HTTP",
	Long: `Serve the channel over HTTP to conda clients.

Users authenticate with the password hashes (bcrypt) listed in the configuration, or not at all
when anonymous access is enabled. Expired tokens are removed periodically.`,
	Example: `% condarepo serve --address :8080 --path /var/lib/condarepo`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		c := mustChannel(ctx)
		if c == nil {
			return
		}
		defer func() { _ = c.Close() }()

		users, err := newUsers(config)
		if err != nil {
			wrapFatalln("load users", err)
			return
		}
		srv := web.New(c.transformer, c.tokens, users,
			web.Logger(c.l),
			web.Metrics(c.m),
			web.Anonymous(config.Anonymous),
			web.TokenTTL(config.Tokens.TTL),
		)

		address := config.Server.Address
		if condarepoFlags.server.address != "" {
			address = condarepoFlags.server.address
		}
		server := &http.Server{
			Addr:              address,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: config.Server.ReadTimeout,
			ReadTimeout:       config.Server.ReadTimeout,
			WriteTimeout:      config.Server.WriteTimeout,
		}

		go cleanTokens(ctx, c.tokens, config.Tokens.CleanInterval, c.l)

		if config.Server.MemWatch > 0 {
			if err = internal.MemWatch(ctx, internal.MemWatchParams{
				Interval:    config.Server.MemWatch,
				ThresholdMB: config.Server.MemProfMB,
				DestDir:     config.Server.MemProfDir,
				Logger:      c.l,
			}); err != nil {
				wrapFatalln("watch memory", err)
				return
			}
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			_ = server.Shutdown(shutdownCtx)
		}()

		c.l.Info("serving channel", zap.String("address", address), zap.Stringer("store", c.store), zap.Bool("anonymous", config.Anonymous))
		if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wrapFatalln("serve", err)
			return
		}
	},
}

func newUsers(cfg *Config) (auth.Users, error) {
	if cfg.Anonymous {
		return auth.AnonymousUsers(), nil
	}
	return auth.NewUsers(cfg.Users)
}

// cleanTokens removes expired tokens periodically, until the context is done
func cleanTokens(ctx context.Context, tkns tokens.Tokens, interval time.Duration, l *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tkns.Clean(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.Warn("could not remove expired tokens", zap.Error(err))
			}
		}
	}
}

func init() {
	addAddressFlag(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
