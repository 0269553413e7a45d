// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/oneconcern/condarepo/pkg/storage/status"
	"github.com/oneconcern/condarepo/pkg/tokens"
	"github.com/spf13/cobra"
)

var tokenListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List tokens",
	Long:    `List the tokens of the channel with their user and expiry. Expired tokens are shown in red.`,
	Aliases: []string{"ls"},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustChannel(ctx)
		if c == nil {
			return
		}
		defer func() { _ = c.Close() }()

		rc, err := c.store.Get(ctx, tokens.DefaultKey)
		if errors.Is(err, status.ErrNotExists) {
			return
		}
		if err != nil {
			wrapFatalln("read tokens", err)
			return
		}
		defer func() { _ = rc.Close() }()

		now := time.Now()
		w := cmd.OutOrStdout()
		err = tokens.Scan(rc, func(item tokens.Item) bool {
			expire := item.Expire.UTC().Format(time.RFC3339)
			if item.Expired(now) {
				expire = color.RedString(expire)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", item.Token, item.Name, expire)
			return true
		})
		if err != nil {
			wrapFatalln("list tokens", err)
			return
		}
	},
}

func init() {
	tokenCmd.AddCommand(tokenListCmd)
}
