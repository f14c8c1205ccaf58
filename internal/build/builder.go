// Package build mirrors a source tree of templates into a destination tree
// of rendered .html files.
//
// Builder.Build removes and recreates the destination root, then walks the
// source tree inside a join-able task group: every directory walk and every
// file compilation is one task, and tasks submit their children before
// returning, so Build returns only after the whole tree has been processed.
// A destination directory is always created before any task that writes
// into it is submitted. No order is imposed between siblings.
package build

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/conneroisu/htmlc/internal/errors"
	"github.com/conneroisu/htmlc/internal/logging"
	"github.com/conneroisu/htmlc/internal/renderer"
)

const tracerName = "github.com/conneroisu/htmlc/internal/build"

// FailurePolicy decides what a failed operation does to the rest of the
// build.
type FailurePolicy int

const (
	// FailFast aborts the build on the first failure. Tasks already running
	// finish; no new node is started.
	FailFast FailurePolicy = iota
	// ContinueOnError records every failure and keeps processing the rest of
	// the tree. A directory that cannot be created skips its subtree.
	ContinueOnError
)

// String returns the string representation of the policy
func (p FailurePolicy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case ContinueOnError:
		return "continue"
	default:
		return "unknown"
	}
}

// Builder compiles source trees with one renderer and one set of options.
type Builder struct {
	fs       afero.Fs
	renderer renderer.Renderer
	options  renderer.Options
	logger   logging.Logger
	policy   FailurePolicy
	jobs     int
	recorder Recorder
	metrics  *BuildMetrics
	tracer   trace.Tracer
}

// Option configures a Builder.
type Option func(*Builder)

// WithOptions sets the render options passed to every Render call.
func WithOptions(opts renderer.Options) Option {
	return func(b *Builder) { b.options = opts }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithPolicy sets the failure policy.
func WithPolicy(policy FailurePolicy) Option {
	return func(b *Builder) { b.policy = policy }
}

// WithJobs caps concurrent file compilations; n <= 0 means no cap.
func WithJobs(n int) Option {
	return func(b *Builder) { b.jobs = n }
}

// WithRecorder sets an external metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(b *Builder) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(b *Builder) {
		if t != nil {
			b.tracer = t
		}
	}
}

// New creates a Builder that reads and writes through fsys and renders with r.
func New(fsys afero.Fs, r renderer.Renderer, opts ...Option) *Builder {
	b := &Builder{
		fs:       fsys,
		renderer: r,
		options:  renderer.Options{},
		logger:   logging.NewNopLogger(),
		policy:   FailFast,
		recorder: NoopRecorder{},
		metrics:  NewBuildMetrics(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("build")
	return b
}

// Metrics returns a snapshot of the counters accumulated by this Builder.
func (b *Builder) Metrics() BuildMetrics {
	return b.metrics.GetSnapshot()
}

// Build is a convenience wrapper compiling src into dest on the OS
// filesystem with the extension-dispatching engine.
func Build(ctx context.Context, src, dest string, options renderer.Options) (*Report, error) {
	fsys := afero.NewOsFs()
	r, err := renderer.New(renderer.EngineAuto, fsys)
	if err != nil {
		return nil, err
	}
	return New(fsys, r, WithOptions(options)).Build(ctx, src, dest)
}

// Build recreates dest and mirrors src into it. It returns once every
// directory and file task has finished. The returned error is the first
// failure under FailFast, or all failures joined under ContinueOnError; the
// report is always non-nil.
func (b *Builder) Build(ctx context.Context, src, dest string) (*Report, error) {
	report := newReport(src, dest)
	logger := b.logger.With("build_id", report.ID)

	ctx, span := b.tracer.Start(ctx, "htmlc.build", trace.WithAttributes(
		attribute.String("htmlc.build_id", report.ID),
		attribute.String("htmlc.source", src),
		attribute.String("htmlc.destination", dest),
	))
	defer span.End()

	perf := logging.StartOperation(logger, "build")
	err := b.build(ctx, logger, src, dest, report)
	report.finish()

	b.metrics.RecordBuild(report.Duration(), err)
	b.recorder.ObserveBuild(report.Duration(), err)

	fields := []interface{}{
		"source", src,
		"destination", dest,
		"files", len(report.Succeeded),
		"directories", len(report.Directories),
		"failures", len(report.Failures),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		perf.EndWithError(ctx, err, fields...)
		return report, err
	}
	perf.End(ctx, fields...)
	return report, nil
}

func (b *Builder) build(ctx context.Context, logger logging.Logger, src, dest string, report *Report) error {
	if err := checkPaths(src, dest); err != nil {
		report.addFailure(Failure{Path: dest, Op: errors.OpLoad, Err: err})
		return err
	}
	if be := b.resetDestination(dest); be != nil {
		report.addFailure(Failure{Path: dest, Op: be.Op, Err: be})
		return be
	}

	g, gctx := errgroup.WithContext(ctx)
	w := &walker{
		builder: b,
		logger:  logger,
		report:  report,
		group:   g,
	}
	if b.jobs > 0 {
		w.sem = semaphore.NewWeighted(int64(b.jobs))
	}

	w.submit(gctx, func(ctx context.Context) error {
		return w.walk(ctx, src, dest)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return report.Err()
}

// resetDestination removes dest (absence is fine) and creates it again as
// an empty directory. The parent must exist.
func (b *Builder) resetDestination(dest string) *errors.BuildError {
	if err := b.fs.RemoveAll(dest); err != nil {
		return errors.NewDestinationError(errors.OpRemoveAll, dest, err)
	}
	if err := b.fs.Mkdir(dest, 0o755); err != nil {
		return errors.NewDestinationError(errors.OpMkdir, dest, err)
	}
	return nil
}

// checkPaths rejects source and destination roots that overlap: removing
// the destination would delete sources, and walking a source that contains
// the destination would never terminate.
func checkPaths(src, dest string) error {
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dest) == "" {
		return errors.NewConfigError("source and destination are required", nil)
	}
	s, d := filepath.Clean(src), filepath.Clean(dest)
	if abs, err := filepath.Abs(s); err == nil {
		s = abs
	}
	if abs, err := filepath.Abs(d); err == nil {
		d = abs
	}
	if within(s, d) || within(d, s) {
		return errors.NewConfigError(fmt.Sprintf("source %q and destination %q overlap", src, dest), nil)
	}
	return nil
}

// within reports whether path is base or lies below it.
func within(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
