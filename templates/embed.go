package templates

import (
	"embed"
	"html/template"
	"strings"
	texttemplate "text/template"
)

//go:embed *.html *.tmpl
var FS embed.FS

var funcs = map[string]any{
	"join": strings.Join,
}

// LoadTemplates loads the HTML pages served by the catalog.
func LoadTemplates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(FS, "*.html")
}

// LoadTextTemplates loads the plain text reports printed by ampctl.
func LoadTextTemplates() (*texttemplate.Template, error) {
	return texttemplate.New("").Funcs(funcs).ParseFS(FS, "*.tmpl")
}
