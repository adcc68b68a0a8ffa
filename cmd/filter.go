package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/agentic-research/spherepack/internal/filter"
	"github.com/agentic-research/spherepack/internal/geometry"
)

func newFilterCmd() *cobra.Command {
	var (
		sdfPath string
		idsPath string
		output  string
	)
	c := &cobra.Command{
		Use:   "filter-sdf",
		Short: "Copy the molecules listed in an ID table to a new SDF file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			idf, err := os.Open(idsPath)
			if err != nil {
				return err
			}
			ids, err := filter.LoadIDs(idf)
			_ = idf.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", idsPath, err)
			}

			in, err := os.Open(sdfPath)
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }() // safe to ignore
			var r io.Reader = in
			if strings.HasSuffix(strings.ToLower(sdfPath), ".zst") {
				dec, err := zstd.NewReader(in)
				if err != nil {
					return fmt.Errorf("zstd: %w", err)
				}
				defer dec.Close()
				r = dec
			}

			out, err := os.Create(output)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, out.Close()) }()
			w := bufio.NewWriter(out)

			bar := progressbar.NewOptions(-1,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("Filtering molecules"),
				progressbar.OptionShowCount(),
			)
			engine := geometry.NewMolfileEngine()
			f := filter.SDF{
				IDs: ids,
				Valid: func(block string) bool {
					_, err := engine.Parse(block)
					return err == nil
				},
				Seen: func() { _ = bar.Add(1) },
			}
			count, err := f.Run(r, w)
			_ = bar.Finish()
			if err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d molecules into %s.\n", count, output)
			return nil
		},
	}
	c.Flags().StringVar(&sdfPath, "sdf", "", "Input SDF file with all compounds")
	c.Flags().StringVar(&idsPath, "ids", "", "CSV file with a mol_name column")
	c.Flags().StringVarP(&output, "output", "o", "", "Output SDF file")
	for _, name := range []string{"sdf", "ids", "output"} {
		_ = c.MarkFlagRequired(name)
	}
	return c
}
