package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/htmlc/internal/scaffolding"
)

var initCmd = &cobra.Command{
	Use:     "init [directory]",
	Aliases: []string{"i"},
	Short:   "Create a new htmlc project",
	Long: `Create a new project in the given directory (default: the current one)
with a .htmlc.yml, a src tree and shared partials.

Examples:
  htmlc init                      # scaffold the current directory
  htmlc init my-site              # create ./my-site
  htmlc init --template minimal   # a single page
  htmlc init --list               # show available templates`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initTemplate string
	initName     string
	initForce    bool
	initList     bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVarP(&initTemplate, "template", "t", scaffolding.DefaultTemplate, "project template")
	initCmd.Flags().StringVarP(&initName, "name", "n", "", "project name (default: directory name)")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing files")
	initCmd.Flags().BoolVar(&initList, "list", false, "list available templates")
}

func runInit(cmd *cobra.Command, args []string) error {
	g := scaffolding.NewProjectGenerator(afero.NewOsFs())
	out := cmd.OutOrStdout()

	if initList {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TEMPLATE\tFILES\tDESCRIPTION")
		for _, t := range g.ListTemplates() {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Name, t.Files, t.Description)
		}
		return tw.Flush()
	}

	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	paths, err := g.Generate(scaffolding.GenerateOptions{
		Dir:      dir,
		Name:     initName,
		Template: initTemplate,
		Force:    initForce,
	})
	if err != nil {
		return err
	}

	for _, p := range paths {
		fmt.Fprintf(out, "  created %s\n", p)
	}
	fmt.Fprintf(out, "\nNext: cd %s && htmlc watch --serve\n", dir)

	return nil
}
