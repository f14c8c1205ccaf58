// Package cmd provides the command-line interface for htmlc.
//
// Configuration System:
//
//	Settings are resolved with the following precedence:
//	1. Command-line flags (--engine, --port, etc.) - highest priority
//	2. Individual environment variables (HTMLC_SERVER_PORT, etc.)
//	3. Configuration file: --config, else HTMLC_CONFIG_FILE, else .htmlc.yml
//	4. Built-in defaults - lowest priority
//
// A .env file in the working directory is loaded before anything else, so
// HTMLC_ variables may also be kept there.
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/htmlc/internal/config"
	"github.com/conneroisu/htmlc/internal/errors"
	"github.com/conneroisu/htmlc/internal/logging"
)

const envPrefix = "HTMLC"

var (
	cfgFile string
	// configErr is set when an explicitly named config file cannot be read.
	configErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "htmlc",
	Short: "Compile a tree of templates into a mirrored tree of HTML files",
	Long: `htmlc renders every file below a source directory with a template engine
and writes the results, renamed to .html, into the same relative location
below a destination directory. The destination is recreated on every build.

Quick Start:
  htmlc init my-site              Create a new project
  htmlc build                     Compile src into dist
  htmlc watch --serve             Rebuild on change and preview with live reload
  htmlc engines                   List template engines`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .htmlc.yml, can also use HTMLC_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig wires .env, the config file and HTMLC_ variables into viper.
func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	configErr = nil
	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(envPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".htmlc")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !stderrors.As(err, &notFound) {
			configErr = errors.NewConfigError("reading config file", err)
		}
	}
}

// loadConfig binds the command's flags to their viper keys, applies
// positional source and destination arguments and loads the configuration.
func loadConfig(cmd *cobra.Command, args []string, flagKeys map[string]string) (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	if err := bindFlags(cmd.Flags(), flagKeys); err != nil {
		return nil, errors.NewConfigError("binding flags", err)
	}
	if len(args) > 0 {
		viper.Set("source", args[0])
	}
	if len(args) > 1 {
		viper.Set("destination", args[1])
	}

	return config.Load()
}

// bindFlags binds at run time so commands sharing a key do not override
// each other's bindings.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(cfg *config.Config, w io.Writer) logging.Logger {
	// Validated by config.Load.
	level, _ := logging.ParseLevel(cfg.Log.Level)
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    w,
		Component: "htmlc",
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
