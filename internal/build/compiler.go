package build

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/htmlc/internal/errors"
	"github.com/conneroisu/htmlc/internal/logging"
	"github.com/conneroisu/htmlc/internal/renderer"
)

// OutputName maps a source file name to its rendered name: the final
// extension is replaced with ".html". A name whose only dot is the leading
// one has no extension, so ".env" becomes ".env.html".
func OutputName(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if ext == base {
		ext = ""
	}
	return strings.TrimSuffix(base, ext) + ".html"
}

// CompileFile renders srcPath and writes the result into destDir under its
// output name, replacing any existing file.
func (b *Builder) CompileFile(ctx context.Context, srcPath, destDir string) (Output, error) {
	return b.compileFile(ctx, b.logger, srcPath, destDir)
}

func (b *Builder) compileFile(ctx context.Context, logger logging.Logger, srcPath, destDir string) (Output, error) {
	start := time.Now()
	out := Output{
		Source: srcPath,
		Path:   filepath.Join(destDir, OutputName(srcPath)),
	}

	ctx, span := b.tracer.Start(ctx, "htmlc.compile", trace.WithAttributes(
		attribute.String("htmlc.source", out.Source),
		attribute.String("htmlc.output", out.Path),
		attribute.String("htmlc.engine", b.engineFor(srcPath)),
	))
	defer span.End()

	logger.Info(ctx, "Compiling", "source", out.Source, "output", out.Path)

	html, err := b.renderer.Render(ctx, srcPath, nil, b.options)
	if err != nil {
		out.Duration = time.Since(start)
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		span.SetStatus(codes.Error, "render failed")
		return out, errors.NewRenderError(srcPath, err)
	}

	if err := afero.WriteFile(b.fs, out.Path, []byte(html), 0o644); err != nil {
		out.Duration = time.Since(start)
		span.SetStatus(codes.Error, "write failed")
		return out, errors.NewIOError(errors.OpWrite, out.Path, err)
	}

	out.Bytes = len(html)
	out.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("htmlc.bytes", out.Bytes))
	return out, nil
}

// engineFor names the engine that renders path.
func (b *Builder) engineFor(path string) string {
	if d, ok := b.renderer.(*renderer.Dispatcher); ok {
		if r := d.For(path); r != nil {
			return r.Name()
		}
	}
	return b.renderer.Name()
}
