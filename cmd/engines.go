package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/htmlc/internal/renderer"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List available template engines",
	Long: `List the engines accepted by --engine and the 'engine' config key, with
the source extensions each one handles under 'auto'.`,
	Args: cobra.NoArgs,
	RunE: runEngines,
}

func init() {
	rootCmd.AddCommand(enginesCmd)
}

func runEngines(cmd *cobra.Command, _ []string) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENGINE\tEXTENSIONS\tDESCRIPTION")
	for _, e := range renderer.Engines() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, strings.Join(e.Extensions, " "), e.Description)
	}

	return tw.Flush()
}
