// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var tokenCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove expired tokens",
	Long:  `Remove expired tokens. A running server does this periodically, see tokens.clean-interval.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustChannel(ctx)
		if c == nil {
			return
		}
		defer func() { _ = c.Close() }()

		if err := c.tokens.Clean(ctx); err != nil {
			wrapFatalln("clean tokens", err)
			return
		}
	},
}

func init() {
	tokenCmd.AddCommand(tokenCleanCmd)
}
