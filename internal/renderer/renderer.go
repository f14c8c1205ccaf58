// Package renderer provides the template engines htmlc compiles source
// files with.
//
// The build core treats rendering as an opaque capability: it hands a
// source path and an Options map to a Renderer and writes back whatever text
// comes out. Engines read their sources through an afero.Fs so the same
// engine runs against the OS filesystem and in-memory test trees.
package renderer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Engine names accepted by New.
const (
	EngineAuto     = "auto"
	EngineTemplate = "template"
	EngineMarkdown = "markdown"
)

// Renderer renders one source file to text.
type Renderer interface {
	Name() string
	Render(ctx context.Context, path string, data any, opts Options) (string, error)
}

// EngineInfo describes a registered engine for the CLI listing.
type EngineInfo struct {
	Name        string
	Description string
	Extensions  []string
}

// Engines returns the engines New understands, sorted by name.
func Engines() []EngineInfo {
	engines := []EngineInfo{
		{
			Name:        EngineAuto,
			Description: "Choose an engine from the source file extension",
			Extensions:  []string{"*"},
		},
		{
			Name:        EngineMarkdown,
			Description: "CommonMark and GFM rendered with goldmark",
			Extensions:  markdownExtensions,
		},
		{
			Name:        EngineTemplate,
			Description: "Go html/template rendered through templ",
			Extensions:  []string{".tmpl", ".gohtml", ".html", ".ejs", ".tpl"},
		},
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i].Name < engines[j].Name })
	return engines
}

// New creates the named engine reading sources from fsys.
func New(name string, fsys afero.Fs) (Renderer, error) {
	switch strings.ToLower(name) {
	case EngineTemplate:
		return NewTemplateRenderer(fsys), nil
	case EngineMarkdown:
		return NewMarkdownRenderer(fsys), nil
	case "", EngineAuto:
		md := NewMarkdownRenderer(fsys)
		d := NewDispatcher(NewTemplateRenderer(fsys))
		for _, ext := range markdownExtensions {
			d.Register(ext, md)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

// IsEngine reports whether name is accepted by New.
func IsEngine(name string) bool {
	switch strings.ToLower(name) {
	case "", EngineAuto, EngineTemplate, EngineMarkdown:
		return true
	}
	return false
}

// Dispatcher picks a Renderer from the source file extension.
type Dispatcher struct {
	byExt    map[string]Renderer
	fallback Renderer
}

// NewDispatcher creates a dispatcher that uses fallback for unregistered
// extensions.
func NewDispatcher(fallback Renderer) *Dispatcher {
	return &Dispatcher{
		byExt:    make(map[string]Renderer),
		fallback: fallback,
	}
}

// Register routes files with extension ext (including the dot) to r.
func (d *Dispatcher) Register(ext string, r Renderer) {
	d.byExt[strings.ToLower(ext)] = r
}

// Name implements Renderer.
func (d *Dispatcher) Name() string { return EngineAuto }

// For returns the renderer used for path.
func (d *Dispatcher) For(path string) Renderer {
	if r, ok := d.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return r
	}
	return d.fallback
}

// Render implements Renderer.
func (d *Dispatcher) Render(ctx context.Context, path string, data any, opts Options) (string, error) {
	r := d.For(path)
	if r == nil {
		return "", fmt.Errorf("no engine registered for %s", path)
	}
	return r.Render(ctx, path, data, opts)
}
