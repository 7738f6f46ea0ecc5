package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Lists the configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tENABLED\tLIST PAGES\tCATEGORIES\tBASE URL")
			for _, src := range appInstance.Sources() {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%s\n",
					src.Key, src.Name, src.Enabled, len(src.ListPages), len(src.Categories), src.BaseURL)
			}
			return tw.Flush()
		},
	}
}
