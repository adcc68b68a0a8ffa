package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/spherepack/internal/filter"
	"github.com/agentic-research/spherepack/internal/sink"
)

func newSelectCmd() *cobra.Command {
	var (
		num    int
		input  string
		output string
	)
	c := &cobra.Command{
		Use:   "select-counts",
		Short: "List molecules whose sphere count is within one of --num",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rows, err := sink.ReadRows(input)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}
			ids := filter.SelectCounts(rows, num)

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, f.Close()) }()
			if err := filter.WriteIDs(f, ids); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered data saved to %s\n", output)
			return nil
		},
	}
	c.Flags().IntVar(&num, "num", 0, "Target sphere count")
	c.Flags().StringVarP(&input, "input", "i", "count_sphere.csv", "Results table to read")
	c.Flags().StringVarP(&output, "output", "o", "", "CSV file for the selected mol_name column")
	_ = c.MarkFlagRequired("num")
	_ = c.MarkFlagRequired("output")
	return c
}
