// Package scaffolding creates new htmlc projects from built-in templates.
package scaffolding

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/htmlc/internal/config"
)

// DefaultTemplate is used when GenerateOptions.Template is empty.
const DefaultTemplate = "basic"

var projectNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ProjectGenerator handles project scaffolding
type ProjectGenerator struct {
	fs        afero.Fs
	templates map[string]ProjectTemplate
	now       func() time.Time
}

// GenerateOptions holds options for project generation
type GenerateOptions struct {
	// Dir is created if missing. Its base name is the default project name.
	Dir      string
	Name     string
	Template string
	// Force overwrites existing files.
	Force bool
}

// TemplateInfo holds basic template information
type TemplateInfo struct {
	Name        string
	Description string
	Files       int
}

// NewProjectGenerator creates a generator writing to fsys.
func NewProjectGenerator(fsys afero.Fs) *ProjectGenerator {
	return &ProjectGenerator{
		fs:        fsys,
		templates: GetBuiltinTemplates(),
		now:       time.Now,
	}
}

// Generate writes the files of a project template below opts.Dir and
// returns their paths. Nothing is written when any target already exists
// and Force is not set.
func (g *ProjectGenerator) Generate(opts GenerateOptions) ([]string, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Template == "" {
		opts.Template = DefaultTemplate
	}
	if opts.Name == "" {
		abs, err := filepath.Abs(opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", opts.Dir, err)
		}
		opts.Name = filepath.Base(abs)
	}
	if err := ValidateProjectName(opts.Name); err != nil {
		return nil, err
	}

	tmpl, exists := g.templates[opts.Template]
	if !exists {
		return nil, fmt.Errorf("template '%s' not found", opts.Template)
	}

	ctx := TemplateContext{
		ProjectName: opts.Name,
		Title:       Title(opts.Name),
		Source:      config.DefaultSource,
		Destination: config.DefaultDestination,
		Date:        g.now().Format("2006-01-02"),
	}

	files := make(map[string]string, len(tmpl.Files))
	paths := make([]string, 0, len(tmpl.Files))
	for _, f := range tmpl.Files {
		rel, err := execute(f.Path, ctx)
		if err != nil {
			return nil, fmt.Errorf("expanding path %s: %w", f.Path, err)
		}
		content, err := execute(f.Content, ctx)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", rel, err)
		}

		path := filepath.Join(opts.Dir, filepath.FromSlash(rel))
		if !opts.Force {
			if _, err := g.fs.Stat(path); err == nil {
				return nil, fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if !os.IsNotExist(err) {
				return nil, err
			}
		}
		files[path] = content
		paths = append(paths, path)
	}

	for _, path := range paths {
		if err := g.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := afero.WriteFile(g.fs, path, []byte(files[path]), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	return paths, nil
}

// ListTemplates returns available templates sorted by name.
func (g *ProjectGenerator) ListTemplates() []TemplateInfo {
	templates := make([]TemplateInfo, 0, len(g.templates))
	for name, tmpl := range g.templates {
		templates = append(templates, TemplateInfo{
			Name:        name,
			Description: tmpl.Description,
			Files:       len(tmpl.Files),
		})
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })

	return templates
}

// AddCustomTemplate adds a custom template
func (g *ProjectGenerator) AddCustomTemplate(name string, tmpl ProjectTemplate) {
	g.templates[name] = tmpl
}

// ValidateProjectName checks if a project name is valid
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if !projectNameRegex.MatchString(name) {
		return fmt.Errorf("project name %q may only contain letters, digits, '.', '_' and '-'", name)
	}

	return nil
}

// Title turns a project name such as "my-site" into "My Site".
func Title(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func execute(text string, ctx TemplateContext) (string, error) {
	tmpl, err := template.New("scaffold").Delims("[[", "]]").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", err
	}

	return sb.String(), nil
}
