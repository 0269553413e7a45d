// Copyright © 2018 One Concern

package cmd

import (
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/oneconcern/condarepo/pkg/dlogger"
	"github.com/oneconcern/condarepo/pkg/repodata"
	"github.com/oneconcern/condarepo/pkg/tokens"
	"github.com/oneconcern/condarepo/pkg/web"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Config of the channel.
//
// NOTE: viper needs the mapstructure names to match the configuration keys.
type Config struct {
	Storage   StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Server    ServerConfig      `mapstructure:"server" yaml:"server"`
	Tokens    TokensConfig      `mapstructure:"tokens" yaml:"tokens"`
	Index     IndexConfig       `mapstructure:"index" yaml:"index"`
	Log       LogConfig         `mapstructure:"log" yaml:"log"`
	Users     map[string]string `mapstructure:"users" yaml:"users,omitempty"`
	Anonymous bool              `mapstructure:"anonymous" yaml:"anonymous"`
}

// StorageConfig selects the backend holding packages, indexes and tokens
type StorageConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	Path       string `mapstructure:"path" yaml:"path,omitempty"`
	Bucket     string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Region     string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Credential string `mapstructure:"credential" yaml:"credential,omitempty"`
}

// ServerConfig of the HTTP channel server
type ServerConfig struct {
	Address      string        `mapstructure:"address" yaml:"address"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout" yaml:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout" yaml:"write-timeout"`
	// MemWatch logs heap growth at this interval. Zero disables it.
	MemWatch     time.Duration `mapstructure:"memwatch" yaml:"memwatch"`
	MemProfMB    uint64        `mapstructure:"memprof-threshold" yaml:"memprof-threshold"`
	MemProfDir   string        `mapstructure:"memprof-dir" yaml:"memprof-dir,omitempty"`
}

// TokensConfig tunes token validity and caching
type TokensConfig struct {
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	CacheSize     int           `mapstructure:"cache-size" yaml:"cache-size"`
	CacheTTL      time.Duration `mapstructure:"cache-ttl" yaml:"cache-ttl"`
	CleanInterval time.Duration `mapstructure:"clean-interval" yaml:"clean-interval"`
}

// IndexConfig tunes the index engine
type IndexConfig struct {
	BufferSize string `mapstructure:"buffer-size" yaml:"buffer-size"`
	Indent     int    `mapstructure:"indent" yaml:"indent"`
}

// LogConfig sets the log level
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

const (
	backendLocalFS = "localfs"
	backendS3      = "s3"
	backendGCS     = "gcs"
	backendBadger  = "badger"
)

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", backendLocalFS)
	v.SetDefault("storage.path", "channel")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.credential", "")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read-timeout", 30*time.Second)
	v.SetDefault("server.write-timeout", 5*time.Minute)
	v.SetDefault("server.memwatch", time.Duration(0))
	v.SetDefault("server.memprof-threshold", 0)
	v.SetDefault("server.memprof-dir", "")
	v.SetDefault("tokens.ttl", web.DefaultTokenTTL)
	v.SetDefault("tokens.cache-size", tokens.DefaultCacheSize)
	v.SetDefault("tokens.cache-ttl", 5*time.Minute)
	v.SetDefault("tokens.clean-interval", time.Hour)
	v.SetDefault("index.buffer-size", units.BytesSize(repodata.DefaultBufferSize))
	v.SetDefault("index.indent", 0)
	v.SetDefault("log.level", dlogger.LogLevelInfo)
	v.SetDefault("anonymous", false)

	v.SetEnvPrefix("condarepo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

func newConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bufferSize of the index engine, as a human readable size (e.g. 64KiB)
func (c *Config) bufferSize() (int, error) {
	n, err := units.RAMInBytes(c.Index.BufferSize)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// configCmd represents the config related commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to inspect the configuration",
	Long: `Commands to inspect the configuration of condarepo.

The configuration is read from condarepo.yaml, in the current directory, $HOME/.condarepo or /etc/condarepo.
The location of the file may be set with CONDAREPO_CONFIG. Every key may be overridden by an environment variable:
storage.bucket is overridden by CONDAREPO_STORAGE_BUCKET.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the effective configuration as YAML. Password hashes are masked.`,
	Run: func(cmd *cobra.Command, args []string) {
		shown := *config
		if len(shown.Users) > 0 {
			shown.Users = make(map[string]string, len(config.Users))
			for name := range config.Users {
				shown.Users[name] = "********"
			}
		}
		b, err := yaml.Marshal(shown)
		if err != nil {
			wrapFatalln("marshal config", err)
			return
		}
		_, _ = cmd.OutOrStdout().Write(b)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
