package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"path"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// PictureURLPrefix is where the router serves the picture directory.
const PictureURLPrefix = "/media/"

func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"picture": func(name string) string {
			return PictureURLPrefix + path.Base(name)
		},
		"money": func(v float64) string {
			return fmt.Sprintf("$%.2f", v)
		},
		"date": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
	}
}

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.New("pages").Funcs(TemplateFuncs()).ParseFS(templateFS, "templates/*.html")
}
