// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Commands to manage the tokens of users",
	Long: `Commands to manage the bearer tokens used by conda clients to access the channel.

Tokens are kept in the .tokens.json document of the channel.`,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
