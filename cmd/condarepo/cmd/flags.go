// Copyright © 2018 One Concern

package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type flagsT struct {
	root struct {
		logLevel string
		cpuProf  bool
	}
	storage struct {
		backend string
		path    string
		bucket  string
	}
	index  indexFlags
	token  tokenFlags
	server struct {
		address string
	}
}

type indexFlags struct {
	key       string
	files     []string
	checksums []string
	pretty    bool
}

func (indexFlags) reset() indexFlags { return indexFlags{} }

type tokenFlags struct {
	user  string
	ttl   time.Duration
	token string
}

func (tokenFlags) reset() tokenFlags { return tokenFlags{} }

var condarepoFlags = flagsT{}

// flag names bound to configuration keys
var boundFlags = map[string]string{
	"loglevel": "log.level",
	"backend":  "storage.backend",
	"path":     "storage.path",
	"bucket":   "storage.bucket",
}

func bindFlags(cmd *cobra.Command) {
	for name, key := range boundFlags {
		if f := cmd.PersistentFlags().Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

func addLogLevel(cmd *cobra.Command) string {
	loglevel := "loglevel"
	cmd.PersistentFlags().StringVar(&condarepoFlags.root.logLevel, loglevel, "info", "The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	return loglevel
}

func addCPUProfFlag(cmd *cobra.Command) string {
	c := "cpuprof"
	cmd.PersistentFlags().BoolVar(&condarepoFlags.root.cpuProf, c, false, "Toggle runtime profiling")
	return c
}

func addBackendFlag(cmd *cobra.Command) string {
	c := "backend"
	cmd.PersistentFlags().StringVar(&condarepoFlags.storage.backend, c, backendLocalFS, "The storage backend of the channel: localfs, s3, gcs or badger")
	return c
}

func addStoragePathFlag(cmd *cobra.Command) string {
	c := "path"
	cmd.PersistentFlags().StringVar(&condarepoFlags.storage.path, c, "channel", "The directory of the channel, for the localfs and badger backends")
	return c
}

func addBucketFlag(cmd *cobra.Command) string {
	c := "bucket"
	cmd.PersistentFlags().StringVar(&condarepoFlags.storage.bucket, c, "", "The bucket of the channel, for the s3 and gcs backends")
	return c
}

func addIndexKeyFlag(cmd *cobra.Command) string {
	c := "key"
	cmd.Flags().StringVar(&condarepoFlags.index.key, c, "", "The key of the index document, e.g. linux-64/repodata.json")
	return c
}

func addPackageFilesFlag(cmd *cobra.Command) string {
	c := "file"
	cmd.Flags().StringSliceVar(&condarepoFlags.index.files, c, nil, "A package archive (.tar.bz2 or .conda) to index. May be repeated")
	return c
}

func addChecksumsFlag(cmd *cobra.Command) string {
	c := "sha256"
	cmd.Flags().StringSliceVar(&condarepoFlags.index.checksums, c, nil, "The sha256 checksum of a package to remove. May be repeated")
	return c
}

func addPrettyFlag(cmd *cobra.Command) string {
	c := "pretty"
	cmd.Flags().BoolVar(&condarepoFlags.index.pretty, c, false, "Print sizes in human readable form")
	return c
}

func addUserFlag(cmd *cobra.Command) string {
	c := "user"
	cmd.Flags().StringVar(&condarepoFlags.token.user, c, "", "The user owning the token")
	return c
}

func addTTLFlag(cmd *cobra.Command) string {
	c := "ttl"
	cmd.Flags().DurationVar(&condarepoFlags.token.ttl, c, 0, "The validity of the token (defaults to tokens.ttl)")
	return c
}

func addTokenFlag(cmd *cobra.Command) string {
	c := "token"
	cmd.Flags().StringVar(&condarepoFlags.token.token, c, "", "The token")
	return c
}

func addAddressFlag(cmd *cobra.Command) string {
	c := "address"
	cmd.Flags().StringVar(&condarepoFlags.server.address, c, "", "The address to listen on (defaults to server.address)")
	return c
}

func requireFlags(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagRequired(name); err != nil {
			wrapFatalln("mark required flag "+name, err)
		}
	}
}
