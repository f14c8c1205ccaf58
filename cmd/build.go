package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/htmlc/internal/build"
	"github.com/conneroisu/htmlc/internal/config"
	"github.com/conneroisu/htmlc/internal/errors"
	"github.com/conneroisu/htmlc/internal/logging"
	"github.com/conneroisu/htmlc/internal/renderer"
)

var buildCmd = &cobra.Command{
	Use:     "build [source] [destination]",
	Aliases: []string{"b"},
	Short:   "Compile the source tree into the destination tree",
	Long: `Compile every file below the source directory and write the results,
renamed to .html, into the same relative location below the destination.
The destination directory is deleted and recreated first; its parent must
already exist.

Exit status is 0 on success, 1 when any file or directory fails and 2 for
configuration errors, including a destination that cannot be recreated.

Examples:
  htmlc build                          # src -> dist
  htmlc build pages public             # pages -> public
  htmlc build -e markdown docs site    # force the markdown engine
  htmlc build -o strict=true           # pass a render option
  htmlc build --continue-on-error -j 4 # report every failure, 4 files at a time`,
	Args: cobra.MaximumNArgs(2),
	RunE: runBuild,
}

// buildFlagKeys maps the flags shared by build and watch to config keys.
var buildFlagKeys = map[string]string{
	"engine":            "engine",
	"jobs":              "build.jobs",
	"continue-on-error": "build.continue_on_error",
	"options-file":      "options_file",
}

var buildRenderOptions map[string]string

func init() {
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("engine", "e", config.DefaultEngine, "template engine (see 'htmlc engines')")
	cmd.Flags().IntP("jobs", "j", 0, "maximum files compiled at once (0 = no limit)")
	cmd.Flags().Bool("continue-on-error", false, "keep building after a failure and report all of them")
	cmd.Flags().String("options-file", "", "YAML or JSON file with render options")
	cmd.Flags().StringToStringVarP(&buildRenderOptions, "option", "o", nil, "render option key=value (repeatable)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args, buildFlagKeys)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	b, err := newBuilder(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	report, err := b.Build(commandContext(cmd), cfg.Source, cfg.Destination)
	printReport(cmd.OutOrStdout(), report)

	return err
}

// newBuilder creates a Builder on the OS filesystem for cfg. Its metrics are
// registered on reg.
func newBuilder(cfg *config.Config, logger logging.Logger, reg prometheus.Registerer) (*build.Builder, error) {
	fsys := afero.NewOsFs()
	r, err := renderer.New(cfg.Engine, fsys)
	if err != nil {
		return nil, err
	}

	options := config.MergeOptions(cfg.Options, nil)
	for k, v := range buildRenderOptions {
		options[k] = v
	}

	policy := build.FailFast
	if cfg.Build.ContinueOnError {
		policy = build.ContinueOnError
	}

	return build.New(fsys, r,
		build.WithOptions(renderer.Options(options)),
		build.WithLogger(logger),
		build.WithPolicy(policy),
		build.WithJobs(cfg.Build.Jobs),
		build.WithRecorder(build.NewPrometheusRecorder(reg)),
	), nil
}

func printReport(w io.Writer, report *build.Report) {
	if report == nil {
		return
	}

	for _, f := range report.Failures {
		fmt.Fprintf(w, "  ✗ [%s] %s (%s): %v\n", f.Kind(), f.Path, f.Op, f.Err)
	}
	if !report.OK() {
		fmt.Fprintf(w, "  %d render, %d io, %d config\n",
			report.CountKind(errors.ErrorTypeRender),
			report.CountKind(errors.ErrorTypeIO),
			report.CountKind(errors.ErrorTypeConfig),
		)
	}

	status := "Built"
	if !report.OK() {
		status = "Build failed:"
	}
	fmt.Fprintf(w, "%s %d files, %d directories, %d failures in %s\n",
		status,
		len(report.Succeeded),
		len(report.Directories),
		len(report.Failures),
		report.Duration().Round(time.Millisecond),
	)
}
