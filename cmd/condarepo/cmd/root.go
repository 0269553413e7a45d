// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "condarepo",
	Short: "condarepo serves conda channels",
	Long: `condarepo serves a conda channel over HTTP.

Packages uploaded to the channel are indexed in the repodata.json document of their subdir.
Indexes are edited in a single streaming pass: they are never loaded in memory as a whole.

The channel is kept on a local directory, an S3 or GCS bucket, or an embedded badger database.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if condarepoFlags.root.cpuProf {
			f, err := os.Create("cpu.prof")
			if err != nil {
				wrapFatalln("create cpu profile", err)
				return
			}
			_ = pprof.StartCPUProfile(f)
		}
	},
	// upstream api note:  *PostRun functions aren't called in case of a panic() in Run
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if condarepoFlags.root.cpuProf {
			pprof.StopCPUProfile()
		}
	},
}

var config *Config

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addLogLevel(rootCmd)
	addBackendFlag(rootCmd)
	addStoragePathFlag(rootCmd)
	addBucketFlag(rootCmd)
	addCPUProfFlag(rootCmd)
	bindFlags(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setConfigDefaults(viper.GetViper())
	if os.Getenv("CONDAREPO_CONFIG") != "" {
		viper.SetConfigFile(os.Getenv("CONDAREPO_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.condarepo")
		viper.AddConfigPath("/etc/condarepo")
		viper.SetConfigName("condarepo")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using config file:", viper.ConfigFileUsed())
	}
	var err error
	config, err = newConfig()
	if err != nil {
		wrapFatalln("read config", err)
	}
}
