package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"fluxweb/sdk/flux"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = []string{"index", "cookies", "list", "view", "form", "delete", "error"}

type crumb struct {
	Label string
	Link  string
}

type pageData struct {
	Title     string
	Crumbs    []crumb
	Flashes   []Flash
	CSRFToken string
	Content   any
}

type listRow struct {
	Link  string
	Cells []string
}

type listView struct {
	Heading      string
	Noun         string
	Plural       string
	Columns      []string
	Rows         []listRow
	FilterKey    string
	FilterValue  string
	NewLink      string
	DownloadLink string
}

type detail struct {
	Label string
	Value string
	Link  string
}

type viewView struct {
	Heading    string
	Details    []detail
	Children   []crumb
	Created    flux.Timestamp
	Updated    *flux.Timestamp
	EditLink   string
	DeleteLink string
}

type option struct {
	Value string
	Label string
}

type formField struct {
	Name     string
	Label    string
	Type     string
	Value    string
	Options  []option
	Required bool
	Hint     string
	Step     string
	Error    string
}

type formView struct {
	Heading    string
	Action     string
	Fields     []formField
	Submit     string
	CancelLink string
}

type deleteView struct {
	Heading    string
	Name       string
	Action     string
	CancelLink string
}

type errorView struct {
	Status  int
	Title   string
	Message string
}

type cookiesView struct {
	Functional string
	Error      string
}

type renderer struct {
	templates map[string]*template.Template
	now       func() time.Time
}

func newRenderer(now func() time.Time) (*renderer, error) {
	r := &renderer{templates: map[string]*template.Template{}, now: now}
	funcs := template.FuncMap{"ago": r.ago}
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// ago renders a timestamp relative to now.
func (r *renderer) ago(v any) string {
	switch ts := v.(type) {
	case flux.Timestamp:
		if ts.IsZero() {
			return ""
		}
		return humanize.RelTime(ts.Time, r.now(), "ago", "from now")
	case *flux.Timestamp:
		if ts == nil {
			return ""
		}
		return r.ago(*ts)
	default:
		return ""
	}
}

// render writes a full page. Output is buffered so a template error never
// leaves a half-written response.
func (r *renderer) render(w http.ResponseWriter, status int, name string, data pageData) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
