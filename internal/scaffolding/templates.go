package scaffolding

// ProjectTemplate is a named set of files written by Generate.
type ProjectTemplate struct {
	Name        string
	Description string
	Files       []FileTemplate
}

// FileTemplate is one generated file. Path and Content are text/templates
// executed with a TemplateContext using [[ ]] delimiters, so the generated
// sources keep their own {{ }} actions.
type FileTemplate struct {
	Path    string
	Content string
}

// TemplateContext holds the context for template generation
type TemplateContext struct {
	ProjectName string
	Title       string
	Source      string
	Destination string
	Date        string
}

// GetBuiltinTemplates returns all built-in project templates
func GetBuiltinTemplates() map[string]ProjectTemplate {
	return map[string]ProjectTemplate{
		"basic":   basicTemplate(),
		"minimal": minimalTemplate(),
	}
}

const configFile = `# htmlc configuration for [[.ProjectName]]
source: [[.Source]]
destination: [[.Destination]]
engine: auto

options:
  views:
    - partials

build:
  jobs: 0
  continue_on_error: false

watch:
  debounce: 300ms
  ignore:
    - .git
    - node_modules
    - "*.swp"

server:
  host: localhost
  port: 8080

log:
  level: info
  format: text
`

const minimalConfigFile = `source: [[.Source]]
destination: [[.Destination]]
`

func basicTemplate() ProjectTemplate {
	return ProjectTemplate{
		Name:        "basic",
		Description: "Pages with a shared header partial and a markdown page",
		Files: []FileTemplate{
			{Path: ".htmlc.yml", Content: configFile},
			{
				Path: "partials/header.tmpl",
				Content: `<header>
  <a href="/">[[.Title]]</a>
  <nav><a href="/about.html">About</a></nav>
</header>
`,
			},
			{
				Path: "[[.Source]]/index.tmpl",
				Content: `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>[[.Title]]</title>
</head>
<body>
  {{template "header.tmpl" .}}
  <main>
    <h1>[[.Title]]</h1>
    <p>Edit [[.Source]]/index.tmpl and run htmlc build.</p>
  </main>
</body>
</html>
`,
			},
			{
				Path: "[[.Source]]/about.md",
				Content: `# About [[.Title]]

Created on [[.Date]]. Markdown files are rendered with goldmark.
`,
			},
		},
	}
}

func minimalTemplate() ProjectTemplate {
	return ProjectTemplate{
		Name:        "minimal",
		Description: "A single page",
		Files: []FileTemplate{
			{Path: ".htmlc.yml", Content: minimalConfigFile},
			{
				Path: "[[.Source]]/index.tmpl",
				Content: `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>[[.Title]]</title></head>
<body><h1>[[.Title]]</h1></body>
</html>
`,
			},
		},
	}
}
