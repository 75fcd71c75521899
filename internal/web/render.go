package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/hpungsan/hearth/internal/errors"
)

// notesTemplate renders the character's free-text sheet sections.
const notesTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Name}} · Hearth</title>
</head>
<body>
<main>
<h1>{{.Name}}</h1>
{{range .Sections}}{{if .HTML}}<section id="{{.ID}}">
<h2>{{.Title}}</h2>
{{.HTML}}
</section>
{{end}}{{end}}<footer>Updated {{formatTime .UpdatedAt}} · hearth {{.Version}}</footer>
</main>
</body>
</html>
`

// NotesSection is one rendered markdown field.
type NotesSection struct {
	ID    string
	Title string
	HTML  template.HTML
}

// NotesPageData is the template data for the notes page.
type NotesPageData struct {
	Name      string
	Version   string
	UpdatedAt int64
	Sections  []NotesSection
}

// Renderer renders HTML pages and error responses.
type Renderer struct {
	notes   *template.Template
	md      goldmark.Markdown
	version string
	log     *zap.Logger
}

// NewRenderer parses the page templates.
func NewRenderer(version string, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"formatTime": formatTime,
	}
	return &Renderer{
		notes:   template.Must(template.New("notes").Funcs(funcMap).Parse(notesTemplate)),
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		version: version,
		log:     log,
	}
}

// renderNotes writes the notes page.
func (r *Renderer) renderNotes(w http.ResponseWriter, data NotesPageData) {
	data.Version = r.version
	var buf bytes.Buffer
	if err := r.notes.Execute(&buf, data); err != nil {
		r.log.Error("template execution error", zap.String("template", "notes"), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// renderError writes an error as JSON, or as plain HTML when the client asked for HTML.
// Internal error causes are logged, never sent.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	hErr, ok := errors.As(err)
	if !ok {
		hErr = errors.NewInternal(err)
	}
	if hErr.Code == errors.ErrInternal || hErr.Code == errors.ErrRemote {
		r.log.Error("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
	}

	if strings.Contains(req.Header.Get("Accept"), "text/html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(hErr.Status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(hErr.Message))
		return
	}

	body := map[string]any{
		"code":    string(hErr.Code),
		"message": hErr.Message,
		"status":  hErr.Status,
	}
	if hErr.Code != errors.ErrInternal && hErr.Details != nil {
		body["details"] = hErr.Details
	}
	renderJSON(w, hErr.Status, map[string]any{"error": body})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
// Raw HTML in the source is dropped by goldmark's default renderer.
func (r *Renderer) renderMarkdown(md string) template.HTML {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	if unix == 0 {
		return "never"
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}
