package renderer

import (
	"bytes"
	"context"

	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmrenderer "github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
)

// Options understood by MarkdownRenderer.
const (
	OptGFM        = "gfm"
	OptUnsafe     = "unsafe"
	OptHardWraps  = "hard_wraps"
	OptXHTML      = "xhtml"
	OptHeadingIDs = "heading_ids"
)

var markdownExtensions = []string{".md", ".markdown"}

// MarkdownRenderer converts Markdown sources to HTML fragments. It has no
// notion of render data; the data argument is ignored.
type MarkdownRenderer struct {
	fs afero.Fs
}

// NewMarkdownRenderer creates a Markdown engine reading from fsys.
func NewMarkdownRenderer(fsys afero.Fs) *MarkdownRenderer {
	return &MarkdownRenderer{fs: fsys}
}

// Name implements Renderer.
func (r *MarkdownRenderer) Name() string { return EngineMarkdown }

// Render implements Renderer.
func (r *MarkdownRenderer) Render(ctx context.Context, path string, _ any, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := newMarkdown(opts).Convert(src, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func newMarkdown(opts Options) goldmark.Markdown {
	var (
		exts       []goldmark.Extender
		parserOpts []parser.Option
		htmlOpts   []gmrenderer.Option
	)

	if opts.Bool(OptGFM, true) {
		exts = append(exts, extension.GFM)
	}
	if opts.Bool(OptHeadingIDs, false) {
		parserOpts = append(parserOpts, parser.WithAutoHeadingID())
	}
	if opts.Bool(OptUnsafe, false) {
		htmlOpts = append(htmlOpts, html.WithUnsafe())
	}
	if opts.Bool(OptHardWraps, false) {
		htmlOpts = append(htmlOpts, html.WithHardWraps())
	}
	if opts.Bool(OptXHTML, false) {
		htmlOpts = append(htmlOpts, html.WithXHTML())
	}

	return goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(htmlOpts...),
	)
}
