// Package config provides configuration management for htmlc using Viper
// for loading from files, environment variables, and command-line flags.
//
// Settings come from .htmlc.yml (or --config), environment variables with
// the HTMLC_ prefix, and flags bound by the CLI. Render options may also be
// kept in a separate YAML or JSON file named by options_file; keys set
// inline under options win over keys from that file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/htmlc/internal/errors"
)

// Defaults applied when a key is unset.
const (
	DefaultSource      = "src"
	DefaultDestination = "dist"
	DefaultEngine      = "auto"
	DefaultHost        = "localhost"
	DefaultPort        = 8080
	DefaultDebounce    = 300 * time.Millisecond
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

type Config struct {
	Source      string                 `mapstructure:"source"       yaml:"source"`
	Destination string                 `mapstructure:"destination"  yaml:"destination"`
	Engine      string                 `mapstructure:"engine"       yaml:"engine"`
	Options     map[string]interface{} `mapstructure:"options"      yaml:"options"`
	OptionsFile string                 `mapstructure:"options_file" yaml:"options_file"`
	Build       BuildConfig            `mapstructure:"build"        yaml:"build"`
	Watch       WatchConfig            `mapstructure:"watch"        yaml:"watch"`
	Server      ServerConfig           `mapstructure:"server"       yaml:"server"`
	Log         LogConfig              `mapstructure:"log"          yaml:"log"`
}

type BuildConfig struct {
	Jobs            int  `mapstructure:"jobs"              yaml:"jobs"`
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Ignore   []string      `mapstructure:"ignore"   yaml:"ignore"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source", DefaultSource)
	v.SetDefault("destination", DefaultDestination)
	v.SetDefault("engine", DefaultEngine)
	v.SetDefault("build.jobs", 0)
	v.SetDefault("build.continue_on_error", false)
	v.SetDefault("watch.debounce", DefaultDebounce)
	v.SetDefault("watch.ignore", []string{".git", "node_modules", "*.swp", "*~"})
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}

// Load reads the global viper instance into a Config, applies defaults for
// unset values, merges the options file and validates the result. Every
// error it returns is a configuration error.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load for an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError("decoding configuration", err)
	}

	applyDefaults(&config)

	if config.OptionsFile != "" {
		fileOpts, err := LoadOptionsFile(config.OptionsFile)
		if err != nil {
			return nil, err
		}
		config.Options = MergeOptions(fileOpts, config.Options)
	}

	result := ValidateConfigWithDetails(&config)
	if result.HasErrors() {
		return nil, errors.NewConfigError("invalid configuration", result.Err())
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Source == "" {
		config.Source = DefaultSource
	}
	if config.Destination == "" {
		config.Destination = DefaultDestination
	}
	if config.Engine == "" {
		config.Engine = DefaultEngine
	}
	if config.Options == nil {
		config.Options = make(map[string]interface{})
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if config.Log.Level == "" {
		config.Log.Level = DefaultLogLevel
	}
	if config.Log.Format == "" {
		config.Log.Format = DefaultLogFormat
	}
}

// LoadOptionsFile parses a YAML (or JSON) mapping of render options.
func LoadOptionsFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("reading options file %s", path), err)
	}

	opts := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("parsing options file %s", path), err)
	}

	return opts, nil
}

// MergeOptions returns base overlaid with override. Neither map is modified.
func MergeOptions(base, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}

	return merged
}
