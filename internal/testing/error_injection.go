// Package testing provides failure injection for filesystem-backed tests.
package testing

import (
	"errors"
	"path/filepath"
	"sync"
	"time"
)

// Operations a FaultFs can be told to fail.
const (
	OpOpen      = "open"
	OpReadDir   = "readdir"
	OpStat      = "stat"
	OpMkdir     = "mkdir"
	OpWrite     = "write"
	OpRemoveAll = "removeall"
	OpRemove    = "remove"
)

// AnyPath matches every path of an operation.
const AnyPath = "*"

// ErrorInjector provides controlled failure injection for testing.
// Targets are keyed by operation and path.
type ErrorInjector struct {
	targets map[string]*ErrorTarget
	mu      sync.Mutex
	enabled bool
}

// ErrorTarget represents an injection point with configuration.
type ErrorTarget struct {
	Op        string
	Path      string
	Error     error
	Count     int64 // Number of times injected
	Remaining int64 // Remaining injections (-1 for unlimited)
	Delay     time.Duration
}

// NewErrorInjector creates a new error injection framework.
func NewErrorInjector() *ErrorInjector {
	return &ErrorInjector{
		targets: make(map[string]*ErrorTarget),
		enabled: true,
	}
}

func key(op, path string) string {
	if path != AnyPath {
		path = filepath.Clean(path)
	}
	return op + "\x00" + path
}

// InjectError makes every op on path fail with err. Use AnyPath to match
// all paths.
func (ei *ErrorInjector) InjectError(op, path string, err error) *ErrorTarget {
	ei.mu.Lock()
	defer ei.mu.Unlock()

	target := &ErrorTarget{
		Op:        op,
		Path:      path,
		Error:     err,
		Remaining: -1,
	}
	ei.targets[key(op, path)] = target

	return target
}

// InjectErrorOnce configures error injection for a single occurrence.
func (ei *ErrorInjector) InjectErrorOnce(op, path string, err error) *ErrorTarget {
	return ei.InjectErrorCount(op, path, err, 1)
}

// InjectErrorCount configures error injection for a specific count.
func (ei *ErrorInjector) InjectErrorCount(op, path string, err error, count int64) *ErrorTarget {
	target := ei.InjectError(op, path, err)
	ei.mu.Lock()
	target.Remaining = count
	ei.mu.Unlock()

	return target
}

// WithDelay sets the injection delay.
func (et *ErrorTarget) WithDelay(delay time.Duration) *ErrorTarget {
	et.Delay = delay

	return et
}

// ShouldFail checks if op on path should fail and returns the error.
// A target for the exact path wins over an AnyPath target.
func (ei *ErrorInjector) ShouldFail(op, path string) error {
	ei.mu.Lock()
	if !ei.enabled {
		ei.mu.Unlock()
		return nil
	}

	target := ei.targets[key(op, path)]
	if target == nil || target.Remaining == 0 {
		target = ei.targets[key(op, AnyPath)]
	}
	if target == nil || target.Remaining == 0 {
		ei.mu.Unlock()
		return nil
	}

	target.Count++
	if target.Remaining > 0 {
		target.Remaining--
	}
	delay, err := target.Delay, target.Error
	ei.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	return err
}

// Enable enables error injection globally.
func (ei *ErrorInjector) Enable() {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	ei.enabled = true
}

// Disable disables error injection globally.
func (ei *ErrorInjector) Disable() {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	ei.enabled = false
}

// Clear removes all error injection targets.
func (ei *ErrorInjector) Clear() {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	ei.targets = make(map[string]*ErrorTarget)
}

// GetStats returns statistics about error injections.
func (ei *ErrorInjector) GetStats() ErrorInjectionStats {
	ei.mu.Lock()
	defer ei.mu.Unlock()

	stats := ErrorInjectionStats{
		Enabled:      ei.enabled,
		TotalTargets: len(ei.targets),
	}
	for _, target := range ei.targets {
		if target.Remaining != 0 {
			stats.ActiveTargets++
		}
		stats.TotalInjections += target.Count
	}

	return stats
}

// ErrorInjectionStats contains statistics about error injection.
type ErrorInjectionStats struct {
	Enabled         bool
	TotalTargets    int
	ActiveTargets   int
	TotalInjections int64
}

// Common error types for testing.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrDiskFull         = errors.New("disk full")
	ErrIO               = errors.New("input/output error")
)
