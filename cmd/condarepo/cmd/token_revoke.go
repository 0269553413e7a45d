// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a token",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustChannel(ctx)
		if c == nil {
			return
		}
		defer func() { _ = c.Close() }()

		revoked, err := c.tokens.Revoke(ctx, condarepoFlags.token.token)
		if err != nil {
			wrapFatalln("revoke token", err)
			return
		}
		if !revoked {
			wrapFatalWithCodef(2, "unknown token")
			return
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token revoked")
	},
}

func init() {
	requireFlags(tokenRevokeCmd, addTokenFlag(tokenRevokeCmd))
	tokenCmd.AddCommand(tokenRevokeCmd)
}
