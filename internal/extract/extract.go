// Package extract pulls virtual files out of raw model output.
//
// Three conventions are recognised. A document that is entirely JSON (an object of
// path to content, or a list of {filename, content} entries, optionally wrapped under
// a "files"-like key) wins outright. Otherwise fenced code blocks whose opening line
// carries a path are read first, then "// FILE: path" sections; a later match for a
// path that was already seen replaces its content but keeps its position.
package extract

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	"blossom/internal/types"
)

var (
	// ```tsx src/App.tsx\n...```  (the language tag is optional, the path is not)
	fencePattern = regexp.MustCompile("(?s)```([A-Za-z0-9_+#.-]*)[ \\t]+([^\\s`]+)[ \\t]*\\r?\\n(.*?)```")

	// Opening line only; used on buffers whose blocks may still be open.
	fenceOpenerPattern = regexp.MustCompile("```[A-Za-z0-9_+#.-]*[ \\t]+([^\\s`]+)[ \\t]*\\r?\\n")

	// // FILE: src/App.tsx   or   # FILE: app.py
	fileHeaderPattern = regexp.MustCompile(`(?m)^[ \t]*(?://|#)[ \t]*FILE:[ \t]*(\S+)[ \t]*$`)

	wrapperKeys = []string{"files", "result", "code", "data", "output", "changes"}
)

// Extract returns the files embedded in raw, in first-seen order. The result is never
// nil; no recognisable markers is a valid, empty outcome.
func Extract(raw string) []types.GeneratedFile {
	if files, ok := extractJSON(raw); ok {
		return files
	}

	c := newCollector()
	for _, m := range fencePattern.FindAllStringSubmatch(raw, -1) {
		c.add(m[2], m[3])
	}
	for _, section := range headerSections(raw) {
		c.add(section.path, section.body)
	}
	return c.result()
}

// PathsIn lists the paths announced by fence or FILE headers in text, in order of
// appearance and without duplicates. It does not require the blocks to be closed,
// which makes it usable on a partially streamed buffer.
func PathsIn(text string) []string {
	type hit struct {
		pos  int
		path string
	}
	var hits []hit
	for _, idx := range fenceOpenerPattern.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{pos: idx[0], path: text[idx[2]:idx[3]]})
	}
	for _, idx := range fileHeaderPattern.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{pos: idx[0], path: text[idx[2]:idx[3]]})
	}
	// Insertion sort by position; the two hit lists are each already ordered.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	seen := make(map[string]bool, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		p := cleanPath(h.path)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

type section struct {
	path string
	body string
}

// headerSections splits raw at FILE headers. A section runs to the next header or the
// end of the text. A header written inside a fenced block ends at the fence that
// closes that block instead, and a header followed directly by a fenced block owns
// just that block. A fence opener that announces its own path also ends a section.
func headerSections(raw string) []section {
	idx := fileHeaderPattern.FindAllStringSubmatchIndex(raw, -1)
	starts := make([]int, len(idx))
	for i, m := range idx {
		starts[i] = m[0]
	}
	fenced := fenceOpenAt(raw, starts)

	sections := make([]section, 0, len(idx))
	for i, m := range idx {
		end := len(raw)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		body := raw[m[1]:end]
		if fenced[i] {
			body = untilClosingFence(body)
		} else {
			body = untilAnnouncedFence(leadingBlock(body))
		}
		sections = append(sections, section{path: raw[m[2]:m[3]], body: body})
	}
	return sections
}

// fenceOpenAt reports, for every offset in positions (ascending, each at a line
// start), whether a fenced block is open there.
func fenceOpenAt(raw string, positions []int) []bool {
	out := make([]bool, len(positions))
	open := false
	off := 0
	for k := 0; k < len(positions); {
		if off >= positions[k] || off >= len(raw) {
			out[k] = open
			k++
			continue
		}
		line, next := raw[off:], len(raw)
		if nl := strings.IndexByte(line, '\n'); nl >= 0 {
			line, next = line[:nl], off+nl+1
		}
		open = toggleFence(open, line)
		off = next
	}
	return out
}

// toggleFence applies one line to the fence state. Any ``` line opens a block; only a
// bare one closes it.
func toggleFence(open bool, line string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "```") {
		return open
	}
	if !open {
		return true
	}
	if strings.Trim(t, "`") == "" {
		return false
	}
	return open
}

// untilClosingFence cuts body at its first bare ``` line.
func untilClosingFence(body string) string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) == "```" {
			return strings.Join(lines[:i], "\n")
		}
	}
	return body
}

// leadingBlock returns the inside of the fenced block body starts with, or body
// unchanged when the first non-blank line is not a fence.
func leadingBlock(body string) string {
	lines := strings.Split(body, "\n")
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start == len(lines) || !strings.HasPrefix(strings.TrimSpace(lines[start]), "```") {
		return body
	}
	return untilClosingFence(strings.Join(lines[start+1:], "\n"))
}

// untilAnnouncedFence cuts body where a fenced block carrying its own path starts.
func untilAnnouncedFence(body string) string {
	for _, loc := range fenceOpenerPattern.FindAllStringIndex(body, -1) {
		if loc[0] == 0 || body[loc[0]-1] == '\n' {
			return body[:loc[0]]
		}
	}
	return body
}

type jsonFile struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Content  string `json:"content"`
}

func extractJSON(raw string) ([]types.GeneratedFile, bool) {
	doc := strings.TrimSpace(raw)
	doc = strings.TrimPrefix(doc, "```json")
	doc = strings.TrimSuffix(doc, "```")
	doc = strings.TrimSpace(doc)
	if doc == "" || (doc[0] != '{' && doc[0] != '[') {
		return nil, false
	}

	if files, ok := decodePathObject(doc); ok && len(files) > 0 {
		return files, true
	}
	if files, ok := decodeEntries([]byte(doc)); ok && len(files) > 0 {
		return files, true
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &wrapper); err != nil {
		return nil, false
	}
	for _, key := range wrapperKeys {
		inner, ok := wrapper[key]
		if !ok {
			continue
		}
		if files, ok := decodeEntries(inner); ok && len(files) > 0 {
			return files, true
		}
		if files, ok := decodePathObject(string(inner)); ok && len(files) > 0 {
			return files, true
		}
	}
	return nil, false
}

// decodePathObject reads {"path": "content", ...} keeping the document's key order.
// Any non-string value, or anything after the closing brace, rejects the document.
func decodePathObject(doc string) ([]types.GeneratedFile, bool) {
	dec := json.NewDecoder(strings.NewReader(doc))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}
	c := newCollector()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		c.add(key, value)
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return c.result(), true
}

func decodeEntries(raw []byte) ([]types.GeneratedFile, bool) {
	var entries []jsonFile
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	c := newCollector()
	for _, e := range entries {
		path := e.Path
		if path == "" {
			path = e.Filename
		}
		c.add(path, e.Content)
	}
	return c.result(), true
}

type collector struct {
	files []types.GeneratedFile
	index map[string]int
}

func newCollector() *collector {
	return &collector{files: []types.GeneratedFile{}, index: map[string]int{}}
}

func (c *collector) add(path, content string) {
	path = cleanPath(path)
	if path == "" {
		return
	}
	content = trimBlankLines(content)
	if i, ok := c.index[path]; ok {
		c.files[i].Content = content
		return
	}
	c.index[path] = len(c.files)
	c.files = append(c.files, types.GeneratedFile{Path: path, Content: content})
}

func (c *collector) result() []types.GeneratedFile { return c.files }

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "`'\"")
	for _, prefix := range []string{"path:", "file:", "filename:", "path=", "file=", "filename="} {
		if len(p) > len(prefix) && strings.EqualFold(p[:len(prefix)], prefix) {
			p = p[len(prefix):]
			break
		}
	}
	p = strings.Trim(strings.TrimSpace(p), "`'\"")
	p = strings.TrimSuffix(p, ":")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	if p == "" || strings.Contains(p, "```") {
		return ""
	}
	return p
}

// trimBlankLines drops whitespace-only lines at both ends, keeping the indentation of
// the first real line.
func trimBlankLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
