package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var expertsCmd = &cobra.Command{
	Use:   "experts",
	Short: "List the experts in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(cfg.Experts)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tENABLED\tTOOLS\tDESCRIPTION")
		for _, s := range catalog.Experts {
			tools := strings.Join(s.Tools, ",")
			if tools == "" {
				tools = "-"
			}
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", s.Name, s.Enabled, tools, s.Description)
		}
		return w.Flush()
	},
}
