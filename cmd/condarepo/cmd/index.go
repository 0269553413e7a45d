// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Commands to maintain package indexes",
	Long: `Commands to maintain the repodata.json index documents of the channel.

Every command edits an index in a single streaming pass: the new document replaces the
previous one only when the edit succeeds.`,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
