// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/condarepo/pkg/repodata"
	"github.com/spf13/cobra"
)

var indexListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the packages of an index",
	Long:    `List the packages of an index document: section, filename, size and sha256 checksum.`,
	Aliases: []string{"ls"},
	Example: `% condarepo index list --key linux-64/repodata.json --pretty
packages	numpy-1.19.2-py38_0.tar.bz2	5.2MB	0a3c...e1f2`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustChannel(ctx)
		if c == nil {
			return
		}
		defer func() { _ = c.Close() }()

		rc, err := c.store.Get(ctx, condarepoFlags.index.key)
		if err != nil {
			wrapFatalln("read index "+condarepoFlags.index.key, err)
			return
		}
		defer func() { _ = rc.Close() }()

		w := cmd.OutOrStdout()
		var werr error
		err = repodata.Walk(rc, func(entry repodata.Entry) bool {
			werr = printEntry(w, entry, condarepoFlags.index.pretty)
			return werr == nil
		})
		if err == nil {
			err = werr
		}
		if err != nil {
			wrapFatalln("list index "+condarepoFlags.index.key, err)
			return
		}
	},
}

func printEntry(w io.Writer, entry repodata.Entry, pretty bool) error {
	sum, err := entry.Checksum()
	if err != nil {
		return err
	}
	size := "-"
	if value := jsoniter.Get(entry.Metadata, "size"); value.ValueType() == jsoniter.NumberValue {
		if pretty {
			size = units.HumanSize(value.ToFloat64())
		} else {
			size = strconv.FormatInt(value.ToInt64(), 10)
		}
	}
	_, err = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Section, color.GreenString(entry.Filename), size, color.HiBlackString(sum))
	return err
}

func init() {
	requireFlags(indexListCmd, addIndexKeyFlag(indexListCmd))
	addPrettyFlag(indexListCmd)
	indexCmd.AddCommand(indexListCmd)
}
