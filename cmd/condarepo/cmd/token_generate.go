// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var tokenGenerateCmd = &cobra.Command{
	Use:     "generate",
	Short:   "Generate a token for a user",
	Long:    `Generate a token for a user and print it.`,
	Example: `% condarepo token generate --user alice --ttl 720h`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustChannel(ctx)
		if c == nil {
			return
		}
		defer func() { _ = c.Close() }()

		ttl := condarepoFlags.token.ttl
		if ttl <= 0 {
			ttl = config.Tokens.TTL
		}
		item, err := c.tokens.Generate(ctx, condarepoFlags.token.user, ttl)
		if err != nil {
			wrapFatalln("generate token", err)
			return
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), item.Token)
	},
}

func init() {
	requireFlags(tokenGenerateCmd, addUserFlag(tokenGenerateCmd))
	addTTLFlag(tokenGenerateCmd)
	tokenCmd.AddCommand(tokenGenerateCmd)
}
