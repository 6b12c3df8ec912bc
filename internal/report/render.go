package report

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gramwatch/internal/domain"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"tagClass": func(t WindowTag) string {
		switch t {
		case TagPrevious:
			return "previous"
		case TagNext:
			return "next"
		default:
			return "match"
		}
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
.entry { border-left: 3px solid #ccc; margin: 0.5em 0; padding: 0.3em 0.8em; }
.entry.match { border-left-color: #d9534f; background: #fdf4f4; }
.entry.previous, .entry.next { color: #666; }
.meta { font-size: 0.8em; color: #888; }
.media img { max-width: 480px; display: block; margin-top: 0.4em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">generated {{.GeneratedAt}} &mdash; {{len .Entries}} entries</p>
{{range .Entries}}
<div class="entry {{tagClass .Tag}}">
  <div class="meta">#{{.Message.ID}} {{.Message.Date.Format "2006-01-02 15:04:05"}}{{if .From}} &mdash; {{.From}}{{end}}{{if .To}} &rarr; {{.To}}{{end}}{{with .Tag.String}} [{{.}}]{{end}}</div>
  <div class="text">{{.Message.Text}}</div>
  {{with .Media}}
  <div class="media">
    {{if .Geo}}<span>geo: {{.Geo}}</span>{{else if .IsImage}}<img src="{{.Path}}" alt="{{.MimeType}}">{{else}}<a href="{{.Path}}">{{.Path}}</a> ({{.MimeType}}){{end}}
  </div>
  {{end}}
</div>
{{end}}
</body>
</html>
`))

type renderData struct {
	Title       string
	GeneratedAt string
	Entries     []Entry
}

// RenderHTML writes the report document for one group.
func RenderHTML(w io.Writer, group *domain.Group, entries []Entry) error {
	title := group.Title
	if title == "" {
		title = fmt.Sprintf("group %d", group.ID)
	}
	return reportTemplate.Execute(w, renderData{
		Title:       title,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Entries:     entries,
	})
}

// WriteHTMLReport renders into <dir>/report_<group>_<timestamp>.html
// and returns the written path.
func WriteHTMLReport(dir string, group *domain.Group, entries []Entry) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("report_%d_%s.html", group.ID, time.Now().UTC().Format("20060102T150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := RenderHTML(f, group, entries); err != nil {
		return "", err
	}
	return path, f.Close()
}

// WriteText exports entries as plain text. Direct regex matches emit
// their flattened groups, one per line; everything else emits the raw
// text prefixed with id and timestamp.
func WriteText(w io.Writer, entries []Entry) error {
	for _, entry := range entries {
		if entry.Tag == TagMatch && len(entry.Matches) > 0 {
			for _, m := range entry.Matches {
				if _, err := fmt.Fprintln(w, m); err != nil {
					return err
				}
			}
			continue
		}
		line := fmt.Sprintf("%d\t%s\t%s", entry.Message.ID,
			entry.Message.Date.Format(time.RFC3339),
			strings.ReplaceAll(entry.Message.RawText, "\n", " "))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteTextExport writes the plain-text export file and returns its path.
func WriteTextExport(dir string, group *domain.Group, entries []Entry) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("export_%d_%s.txt", group.ID, time.Now().UTC().Format("20060102T150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := WriteText(f, entries); err != nil {
		return "", err
	}
	return path, f.Close()
}
