// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"

	"github.com/oneconcern/condarepo/pkg/repodata"
	"github.com/spf13/cobra"
)

var indexRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove packages from an index",
	Long: `Remove the packages with the given sha256 checksums from an index document.

Checksums matching no package are ignored. Sections emptied by the removal are kept.`,
	Example: `% condarepo index remove --key linux-64/repodata.json --sha256 0a3c...e1f2`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustChannel(ctx)
		if c == nil {
			return
		}
		defer func() { _ = c.Close() }()

		checksums := repodata.NewChecksums(condarepoFlags.index.checksums...)
		if err := c.transformer.Remove(ctx, condarepoFlags.index.key, checksums); err != nil {
			wrapFatalln("remove packages", err)
			return
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed packages with %d checksum(s) from %s\n", checksums.Len(), condarepoFlags.index.key)
	},
}

func init() {
	requireFlags(indexRemoveCmd, addIndexKeyFlag(indexRemoveCmd), addChecksumsFlag(indexRemoveCmd))
	indexCmd.AddCommand(indexRemoveCmd)
}
