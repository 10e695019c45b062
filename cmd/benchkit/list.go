package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/benchkit/internal/dataset"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List built-in datasets",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newListDatasetsCmd())
	return cmd
}

func newListDatasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List available benchmark datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMETRICS")
			for _, name := range dataset.Names() {
				a, err := dataset.New(name)
				if err != nil {
					return err
				}
				var metrics []string
				for _, m := range a.Metrics() {
					metrics = append(metrics, m.Name)
				}
				fmt.Fprintf(tw, "%s\t%s\n", a.Name(), strings.Join(metrics, ","))
			}
			return tw.Flush()
		},
	}
}
