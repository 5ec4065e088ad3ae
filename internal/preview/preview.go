// Package preview assembles a single self-contained HTML document from generated files
// so the builder can show it inside a sandboxed iframe.
package preview

import (
	"bytes"
	"fmt"
	"html/template"
	"path"
	"regexp"
	"strings"

	"blossom/internal/types"
	"blossom/internal/utils"
)

// PlaceholderDocument is what an empty workspace previews as.
const PlaceholderDocument = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Preview</title>
</head>
<body>
<p class="blossom-placeholder">Nothing to preview yet. Generate some code to see it here.</p>
</body>
</html>
`

var documentTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{- range .Styles}}
<style>{{.}}</style>
{{- end}}
</head>
<body>
{{.Body}}
</body>
</html>
`))

var (
	htmlDocumentPattern = regexp.MustCompile(`(?i)<html[\s>]`)
	headClosePattern    = regexp.MustCompile(`(?i)</head\s*>`)
)

type document struct {
	Title  string
	Styles []template.CSS
	Body   template.HTML
}

// Render returns the preview document for files. It never fails: anything that cannot
// be rendered becomes a placeholder block that says why.
func Render(files []types.GeneratedFile) (doc string) {
	if len(files) == 0 {
		return PlaceholderDocument
	}

	entry := SelectEntry(files)
	defer func() {
		if r := recover(); r != nil {
			doc = placeholderBlock(entry.Path, fmt.Sprintf("renderer error: %v", r))
		}
	}()

	styles := stylesheets(files)
	kind := utils.DetermineFileType(entry.Path)

	switch {
	case kind == "HTML" && htmlDocumentPattern.MatchString(entry.Content):
		return injectStyles(entry.Content, styles)
	case kind == "HTML":
		return renderDocument(entry.Path, styles, entry.Content)
	case utils.IsMarkup(kind):
		body, err := DowngradeJSX(entry.Content)
		if err != nil {
			return placeholderBlock(entry.Path, err.Error())
		}
		return renderDocument(entry.Path, styles, body)
	default:
		return renderDocument(entry.Path, styles,
			`<pre class="blossom-source">`+template.HTMLEscapeString(entry.Content)+`</pre>`)
	}
}

// SelectEntry picks the file to preview: an App-like file first, then index or main,
// then the first file. Only HTML and script files qualify for the first two ranks, and
// within a rank HTML and JSX beat plain scripts.
func SelectEntry(files []types.GeneratedFile) types.GeneratedFile {
	best, bestRank := 0, 6
	for i, f := range files {
		if r := entryRank(f.Path); r < bestRank {
			best, bestRank = i, r
		}
	}
	return files[best]
}

func entryRank(p string) int {
	kind := utils.DetermineFileType(p)
	if !utils.IsMarkup(kind) {
		return 5
	}
	plain := 0
	if kind == "JavaScript" || kind == "TypeScript" {
		plain = 1
	}
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	stem := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
	switch stem {
	case "app":
		return plain
	case "index", "main":
		return 2 + plain
	}
	return 4
}

func stylesheets(files []types.GeneratedFile) []template.CSS {
	var out []template.CSS
	for _, f := range files {
		if utils.DetermineFileType(f.Path) == "CSS" && strings.TrimSpace(f.Content) != "" {
			out = append(out, template.CSS(f.Content))
		}
	}
	return out
}

func renderDocument(title string, styles []template.CSS, body string) string {
	var buf bytes.Buffer
	err := documentTemplate.Execute(&buf, document{
		Title:  title,
		Styles: styles,
		Body:   template.HTML(body),
	})
	if err != nil {
		return placeholderBlock(title, err.Error())
	}
	return buf.String()
}

func injectStyles(doc string, styles []template.CSS) string {
	if len(styles) == 0 {
		return doc
	}
	var b strings.Builder
	for _, s := range styles {
		b.WriteString("<style>")
		b.WriteString(string(s))
		b.WriteString("</style>\n")
	}
	if loc := headClosePattern.FindStringIndex(doc); loc != nil {
		return doc[:loc[0]] + b.String() + doc[loc[0]:]
	}
	return b.String() + doc
}

func placeholderBlock(entry, reason string) string {
	body := `<div class="blossom-placeholder"><p>Preview unavailable for ` +
		template.HTMLEscapeString(entry) + `.</p><p><code>` +
		template.HTMLEscapeString(reason) + `</code></p></div>`
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, document{Title: "Preview", Body: template.HTML(body)}); err != nil {
		return PlaceholderDocument
	}
	return buf.String()
}
