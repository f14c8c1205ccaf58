package config

import (
	stderrors "errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/htmlc/internal/logging"
	"github.com/conneroisu/htmlc/internal/renderer"
)

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// Err joins the validation errors, or returns nil.
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	errs := make([]error, 0, len(vr.Errors))
	for i := range vr.Errors {
		errs = append(errs, &vr.Errors[i])
	}

	return stderrors.Join(errs...)
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validatePathsDetails(config, result)
	validateEngineDetails(config, result)
	validateBuildConfigDetails(&config.Build, result)
	validateWatchConfigDetails(&config.Watch, result)
	validateServerConfigDetails(&config.Server, result)
	validateLogConfigDetails(&config.Log, result)

	result.Valid = !result.HasErrors()

	return result
}

func validatePathsDetails(config *Config, result *ValidationResult) {
	if strings.TrimSpace(config.Source) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "source",
			Value:       config.Source,
			Message:     "source directory cannot be empty",
			Suggestions: []string{"Use 'src' or pass the directory as the first argument"},
		})
	}
	if strings.TrimSpace(config.Destination) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "destination",
			Value:       config.Destination,
			Message:     "destination directory cannot be empty",
			Suggestions: []string{"Use 'dist' or pass the directory as the second argument"},
		})
	}
	if result.HasErrors() {
		return
	}

	if Overlaps(config.Source, config.Destination) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "destination",
			Value:   config.Destination,
			Message: fmt.Sprintf("destination %q overlaps source %q", config.Destination, config.Source),
			Suggestions: []string{
				"The destination is deleted before every build",
				"Use sibling directories such as 'src' and 'dist'",
			},
		})
	}
}

func validateEngineDetails(config *Config, result *ValidationResult) {
	if !renderer.IsEngine(config.Engine) {
		names := make([]string, 0, 3)
		for _, e := range renderer.Engines() {
			names = append(names, e.Name)
		}
		result.Errors = append(result.Errors, ValidationError{
			Field:       "engine",
			Value:       config.Engine,
			Message:     fmt.Sprintf("unknown engine %q", config.Engine),
			Suggestions: []string{"Available engines: " + strings.Join(names, ", ")},
		})
	}
}

func validateBuildConfigDetails(config *BuildConfig, result *ValidationResult) {
	if config.Jobs < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "build.jobs",
			Value:       config.Jobs,
			Message:     "jobs cannot be negative",
			Suggestions: []string{"Use 0 for no limit"},
		})
	}
}

func validateWatchConfigDetails(config *WatchConfig, result *ValidationResult) {
	if config.Debounce < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "watch.debounce",
			Value:   config.Debounce,
			Message: "debounce cannot be negative",
		})
	}
	for _, pattern := range config.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "watch.ignore",
				Value:   pattern,
				Message: fmt.Sprintf("invalid pattern %q: %v", pattern, err),
			})
		}
	}
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	// Port 0 lets the system assign one.
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "server.port",
			Value:       config.Port,
			Message:     "port below 1024 requires elevated privileges",
			Suggestions: []string{"Consider using a port above 1024 for development"},
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local development",
					"Use '0.0.0.0' to bind to all interfaces",
				},
			})
		} else if config.Host == "0.0.0.0" || config.Host == "::" {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: "preview server will be reachable from other machines",
			})
		}
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log.level",
			Value:       config.Level,
			Message:     err.Error(),
			Suggestions: []string{"Use one of: debug, info, warn, error"},
		})
	}
	if config.Format != "text" && config.Format != "json" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log.format",
			Value:       config.Format,
			Message:     fmt.Sprintf("unknown log format %q", config.Format),
			Suggestions: []string{"Use 'text' or 'json'"},
		})
	}
}

func validateHostname(host string) error {
	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

// Overlaps reports whether a and b are the same directory or one contains
// the other.
func Overlaps(a, b string) bool {
	a, b = absClean(a), absClean(b)
	return within(a, b) || within(b, a)
}

func absClean(p string) string {
	p = filepath.Clean(p)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func within(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
