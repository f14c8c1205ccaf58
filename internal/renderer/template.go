package renderer

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/a-h/templ"
	"github.com/spf13/afero"
)

// Options understood by TemplateRenderer.
const (
	OptLeftDelim    = "left_delim"
	OptRightDelim   = "right_delim"
	OptStrict       = "strict"
	OptRmWhitespace = "rm_whitespace"
	OptViews        = "views"
)

// TemplateRenderer renders Go html/template sources. Every directory listed
// under the "views" option contributes its files as named partials, named by
// their slash-separated path relative to that directory.
type TemplateRenderer struct {
	fs afero.Fs
}

// NewTemplateRenderer creates a template engine reading from fsys.
func NewTemplateRenderer(fsys afero.Fs) *TemplateRenderer {
	return &TemplateRenderer{fs: fsys}
}

// Name implements Renderer.
func (r *TemplateRenderer) Name() string { return EngineTemplate }

// Render parses path and its partials and executes the result with data.
func (r *TemplateRenderer) Render(ctx context.Context, path string, data any, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return "", err
	}

	tmpl, err := r.newTemplate(filepath.Base(path), opts)
	if err != nil {
		return "", err
	}
	if _, err := tmpl.Parse(r.prepare(string(src), opts)); err != nil {
		return "", err
	}
	for _, dir := range opts.StringSlice(OptViews) {
		if err := r.parseViews(tmpl, dir, opts); err != nil {
			return "", fmt.Errorf("loading views from %s: %w", dir, err)
		}
	}

	var sb strings.Builder
	if err := templ.FromGoHTML(tmpl, data).Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (r *TemplateRenderer) newTemplate(name string, opts Options) (*template.Template, error) {
	tmpl := template.New(name)

	left, right := opts.String(OptLeftDelim, ""), opts.String(OptRightDelim, "")
	if (left == "") != (right == "") {
		return nil, fmt.Errorf("%s and %s must be set together", OptLeftDelim, OptRightDelim)
	}
	tmpl.Delims(left, right)

	if opts.Bool(OptStrict, false) {
		tmpl.Option("missingkey=error")
	}
	return tmpl, nil
}

func (r *TemplateRenderer) parseViews(tmpl *template.Template, dir string, opts Options) error {
	return afero.Walk(r.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if tmpl.Lookup(name) != nil {
			return nil
		}

		content, err := afero.ReadFile(r.fs, path)
		if err != nil {
			return err
		}
		if _, err := tmpl.New(name).Parse(r.prepare(string(content), opts)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

var (
	newlineRuns    = regexp.MustCompile(`[\r\n]+`)
	edgeWhitespace = regexp.MustCompile(`(?m)^[ \t]+|[ \t]+$`)
)

// prepare applies source-level options before parsing.
func (r *TemplateRenderer) prepare(src string, opts Options) string {
	if !opts.Bool(OptRmWhitespace, false) {
		return src
	}
	src = newlineRuns.ReplaceAllString(src, "\n")
	src = edgeWhitespace.ReplaceAllString(src, "")
	src = newlineRuns.ReplaceAllString(src, "\n")
	return strings.Trim(src, "\n")
}
