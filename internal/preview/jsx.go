package preview

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	errNoMarkup   = errors.New("no JSX markup found")
	errUnbalanced = errors.New("unbalanced braces in JSX")
)

var (
	returnParenPattern = regexp.MustCompile(`(?:return|=>)\s*\(`)
	returnTagPattern   = regexp.MustCompile(`return\s*<`)

	jsxCommentPattern = regexp.MustCompile(`(?s)\{\s*/\*.*?\*/\s*\}`)
	styleObjectAttr   = regexp.MustCompile(`style=\{\{([^{}]*)\}\}`)
	literalAttr       = regexp.MustCompile(`([A-Za-z_:][\w:.-]*)=\{\s*(?:"([^"]*)"|'([^']*)'|` + "`([^`$]*)`" + `|(-?\d+(?:\.\d+)?|true|false))\s*\}`)
	dynamicAttr       = regexp.MustCompile(`\s+[A-Za-z_:][\w:.-]*=\{`)
	literalText       = regexp.MustCompile(`\{\s*(?:"([^"]*)"|'([^']*)'|` + "`([^`$]*)`" + `|(-?\d+(?:\.\d+)?))\s*\}`)
	fragmentTag       = regexp.MustCompile(`<>|</>`)
	componentOpen     = regexp.MustCompile(`<([A-Z][\w.]*)(\s[^<>]*?)?\s*(/?)>`)
	componentClose    = regexp.MustCompile(`</([A-Z][\w.]*)\s*>`)
	selfClosing       = regexp.MustCompile(`<([a-z][\w-]*)(\s[^<>]*?)?\s*/>`)
	anyExpression     = regexp.MustCompile(`\{`)
	camelBoundary     = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true,
	"track": true, "wbr": true,
}

var attrRenames = map[string]string{
	"classname": "class",
	"htmlfor":   "for",
}

// DowngradeJSX turns the markup returned by a React component into plain HTML. It is
// an approximation: literal expressions are inlined, every other expression is
// dropped and components become placeholder divs.
func DowngradeJSX(src string) (string, error) {
	markup, err := locateMarkup(src)
	if err != nil {
		return "", err
	}

	markup = jsxCommentPattern.ReplaceAllString(markup, "")
	markup = styleObjectAttr.ReplaceAllStringFunc(markup, func(m string) string {
		return `style="` + html.EscapeString(styleObjectToCSS(styleObjectAttr.FindStringSubmatch(m)[1])) + `"`
	})
	markup = literalAttr.ReplaceAllStringFunc(markup, func(m string) string {
		sub := literalAttr.FindStringSubmatch(m)
		return sub[1] + `="` + html.EscapeString(firstNonEmpty(sub[2:]...)) + `"`
	})
	if markup, err = stripBalanced(markup, dynamicAttr); err != nil {
		return "", err
	}
	markup = literalText.ReplaceAllStringFunc(markup, func(m string) string {
		return html.EscapeString(firstNonEmpty(literalText.FindStringSubmatch(m)[1:]...))
	})
	if markup, err = stripBalanced(markup, anyExpression); err != nil {
		return "", err
	}
	if strings.Contains(markup, "}") {
		return "", errUnbalanced
	}

	markup = fragmentTag.ReplaceAllString(markup, "")
	markup = componentOpen.ReplaceAllStringFunc(markup, func(m string) string {
		sub := componentOpen.FindStringSubmatch(m)
		tag := `<div data-component="` + sub[1] + `"` + sub[2] + `>`
		if sub[3] == "/" {
			tag += "</div>"
		}
		return tag
	})
	markup = componentClose.ReplaceAllString(markup, "</div>")
	markup = selfClosing.ReplaceAllStringFunc(markup, func(m string) string {
		sub := selfClosing.FindStringSubmatch(m)
		if voidElements[sub[1]] {
			return "<" + sub[1] + sub[2] + ">"
		}
		return "<" + sub[1] + sub[2] + "></" + sub[1] + ">"
	})

	return normalizeHTML(markup)
}

// locateMarkup finds the JSX a component returns: the longest "return (...)" or
// "=> (...)" block, else the first "return <...", else the whole source when it
// already is markup.
func locateMarkup(src string) (string, error) {
	best := ""
	for _, loc := range returnParenPattern.FindAllStringIndex(src, -1) {
		open := loc[1] - 1
		end := matchPair(src, open, '(', ')')
		if end < 0 {
			continue
		}
		inner := strings.TrimSpace(src[open+1 : end])
		if strings.HasPrefix(inner, "<") && len(inner) > len(best) {
			best = inner
		}
	}
	if best != "" {
		return best, nil
	}

	if loc := returnTagPattern.FindStringIndex(src); loc != nil {
		rest := src[loc[1]-1:]
		stop := len(rest)
		if i := strings.Index(rest, ";"); i >= 0 && i < stop {
			stop = i
		}
		if i := strings.Index(rest, "\n}"); i >= 0 && i < stop {
			stop = i
		}
		rest = rest[:stop]
		if i := strings.LastIndex(rest, ">"); i >= 0 {
			return rest[:i+1], nil
		}
	}

	if trimmed := strings.TrimSpace(src); strings.HasPrefix(trimmed, "<") {
		return trimmed, nil
	}
	return "", errNoMarkup
}

// matchPair returns the index of the closer matching the opener at open, or -1.
func matchPair(s string, open int, opener, closer byte) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripBalanced removes every match of start together with the brace expression it
// opens. start must end on the opening brace.
func stripBalanced(s string, start *regexp.Regexp) (string, error) {
	var b strings.Builder
	last := 0
	for _, loc := range start.FindAllStringIndex(s, -1) {
		if loc[0] < last {
			continue
		}
		end := matchPair(s, loc[1]-1, '{', '}')
		if end < 0 {
			return "", errUnbalanced
		}
		b.WriteString(s[last:loc[0]])
		last = end + 1
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// styleObjectToCSS converts the body of style={{ color: 'red', marginTop: 4 }}.
func styleObjectToCSS(body string) string {
	var decls []string
	for _, part := range strings.Split(body, ",") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), `"'`)
		value = strings.Trim(strings.TrimSpace(value), "\"'`")
		if key == "" || value == "" {
			continue
		}
		key = strings.ToLower(camelBoundary.ReplaceAllString(key, "$1-$2"))
		decls = append(decls, fmt.Sprintf("%s: %s", key, value))
	}
	return strings.Join(decls, "; ")
}

// normalizeHTML parses the downgraded markup as a body fragment and renders it back,
// which closes stray tags and fixes JSX attribute names the parser lowercased.
func normalizeHTML(markup string) (string, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return "", fmt.Errorf("parse downgraded markup: %w", err)
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		renameAttributes(n)
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render downgraded markup: %w", err)
		}
	}
	return buf.String(), nil
}

func renameAttributes(n *html.Node) {
	if n.Type == html.ElementNode {
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			if a.Key == "key" || a.Key == "ref" {
				continue
			}
			if renamed, ok := attrRenames[a.Key]; ok {
				a.Key = renamed
			}
			kept = append(kept, a)
		}
		n.Attr = kept
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renameAttributes(c)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
