// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oneconcern/condarepo/pkg/archive"
	"github.com/oneconcern/condarepo/pkg/repodata"
	"github.com/spf13/cobra"
)

var indexMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Add packages to an index",
	Long: `Add the metadata of package archives to an index document.

The metadata is read from info/index.json in each archive, with its md5 and sha256 checksums and size.
A package already in the index is replaced. The archives themselves are not copied to the channel.`,
	Example: `% condarepo index merge --key linux-64/repodata.json --file numpy-1.19.2-py38_0.tar.bz2`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		batch, err := readPackages(condarepoFlags.index.files)
		if err != nil {
			wrapFatalln("read packages", err)
			return
		}

		c := mustChannel(ctx)
		if c == nil {
			return
		}
		defer func() { _ = c.Close() }()

		if err = c.transformer.Merge(ctx, condarepoFlags.index.key, batch); err != nil {
			wrapFatalln("merge packages", err)
			return
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "merged %d package(s) into %s\n", batch.Len(), condarepoFlags.index.key)
	},
}

func readPackages(files []string) (*repodata.Batch, error) {
	batch := repodata.NewBatch()
	for _, file := range files {
		name := filepath.Base(file)
		metadata, err := readPackage(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if err = batch.Add(name, metadata); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

func readPackage(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	// local archives are read in place, without spooling
	return archive.Metadata(filepath.Base(file), io.NewSectionReader(f, 0, st.Size()))
}

func init() {
	requireFlags(indexMergeCmd, addIndexKeyFlag(indexMergeCmd), addPackageFilesFlag(indexMergeCmd))
	indexCmd.AddCommand(indexMergeCmd)
}
