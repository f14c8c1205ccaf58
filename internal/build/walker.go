package build

import (
	"context"
	stderrors "errors"
	"path/filepath"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/conneroisu/htmlc/internal/errors"
	"github.com/conneroisu/htmlc/internal/logging"
)

// walker holds the per-build state shared by all tasks of one Build.
type walker struct {
	builder *Builder
	logger  logging.Logger
	report  *Report
	group   *errgroup.Group
	sem     *semaphore.Weighted
}

// submit runs fn as a task of the build's group. Callers are themselves
// tasks (or Build before Wait), so the group counter never drops to zero
// while children are still being submitted.
func (w *walker) submit(ctx context.Context, fn func(context.Context) error) {
	w.group.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// walk mirrors the immediate entries of srcDir into destDir, which must
// already exist. Subdirectories are created here, before their own walk is
// submitted; files are handed to compile tasks.
func (w *walker) walk(ctx context.Context, srcDir, destDir string) error {
	ctx, span := w.builder.tracer.Start(ctx, "htmlc.walk", trace.WithAttributes(
		attribute.String("htmlc.source", srcDir),
		attribute.String("htmlc.destination", destDir),
	))
	defer span.End()

	fsys := w.builder.fs
	entries, err := afero.ReadDir(fsys, srcDir)
	if err != nil {
		return w.fail(ctx, span, errors.NewIOError(errors.OpReadDir, srcDir, err))
	}
	span.SetAttributes(attribute.Int("htmlc.entries", len(entries)))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		srcPath := filepath.Join(srcDir, entry.Name())
		info, err := fsys.Stat(srcPath)
		if err != nil {
			if err := w.fail(ctx, span, errors.NewIOError(errors.OpStat, srcPath, err)); err != nil {
				return err
			}
			continue
		}

		if !info.IsDir() {
			w.submit(ctx, func(ctx context.Context) error {
				return w.compile(ctx, srcPath, destDir)
			})
			continue
		}

		target := filepath.Join(destDir, info.Name())
		if err := fsys.Mkdir(target, 0o755); err != nil {
			if err := w.fail(ctx, span, errors.NewIOError(errors.OpMkdir, target, err)); err != nil {
				return err
			}
			continue
		}
		w.report.addDirectory(target)
		w.builder.metrics.RecordDirectory()
		w.builder.recorder.IncDirectory()
		w.logger.Debug(ctx, "Created directory", "path", target)

		w.submit(ctx, func(ctx context.Context) error {
			return w.walk(ctx, srcPath, target)
		})
	}
	return nil
}

// compile runs the file compiler for one entry and records the outcome.
func (w *walker) compile(ctx context.Context, srcPath, destDir string) error {
	if w.sem != nil {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer w.sem.Release(1)
	}

	out, err := w.builder.compileFile(ctx, w.logger, srcPath, destDir)
	if cerr := ctx.Err(); err != nil && cerr != nil && stderrors.Is(err, cerr) {
		return cerr
	}
	w.builder.metrics.RecordFile(err)
	w.builder.recorder.ObserveCompile(w.builder.engineFor(srcPath), out.Duration, err)
	if err != nil {
		return w.fail(ctx, trace.SpanFromContext(ctx), err)
	}
	w.report.addOutput(out)
	return nil
}

// fail records err and returns it when the policy aborts the build.
func (w *walker) fail(ctx context.Context, span trace.Span, err error) error {
	be, _ := err.(*errors.BuildError)
	f := Failure{Err: err}
	fields := []interface{}{}
	if be != nil {
		f.Path, f.Op = be.Path, be.Op
		fields = be.Fields()
	}
	w.report.addFailure(f)

	span.RecordError(err)
	span.SetStatus(codes.Error, f.Op+" failed")
	w.logger.Error(ctx, err, "Build step failed", fields...)

	if w.builder.policy == ContinueOnError {
		return nil
	}
	return err
}
