// Package filetree turns a flat list of generated files into the directory tree shown
// in the builder's navigation pane.
package filetree

import (
	"sort"
	"strings"

	"blossom/internal/types"
	"blossom/internal/utils"
)

// Build returns the root-level nodes for files. Directories are created on demand and
// every level is sorted directories first, then by name (byte order, case-sensitive).
//
// When a path names a node that already exists with the other kind (a file "utils"
// and a file "utils/helper.ts"), the later path replaces the earlier node.
func Build(files []types.GeneratedFile) []*types.FileTreeNode {
	root := newLevel()
	for _, f := range files {
		segments := splitPath(f.Path)
		if len(segments) == 0 {
			continue
		}
		lvl := root
		for i, name := range segments[:len(segments)-1] {
			lvl = lvl.dir(name, strings.Join(segments[:i+1], "/"))
		}
		name := segments[len(segments)-1]
		path := strings.Join(segments, "/")
		lvl.put(&types.FileTreeNode{
			Name:     name,
			Path:     path,
			Kind:     types.KindFile,
			Language: utils.DetermineFileType(name),
		})
	}
	return root.nodes()
}

// Flatten lists the paths of every file node, depth first in tree order.
func Flatten(nodes []*types.FileTreeNode) []string {
	var out []string
	var walk func([]*types.FileTreeNode)
	walk = func(level []*types.FileTreeNode) {
		for _, n := range level {
			if n.IsDir() {
				walk(n.Children)
				continue
			}
			out = append(out, n.Path)
		}
	}
	walk(nodes)
	return out
}

// Find returns the node at path, or nil.
func Find(nodes []*types.FileTreeNode, path string) *types.FileTreeNode {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil
	}
	level := nodes
	var found *types.FileTreeNode
	for _, name := range segments {
		found = nil
		for _, n := range level {
			if n.Name == name {
				found = n
				break
			}
		}
		if found == nil {
			return nil
		}
		level = found.Children
	}
	return found
}

// Format draws nodes as an indented listing, directories suffixed with "/".
func Format(nodes []*types.FileTreeNode) string {
	var b strings.Builder
	var walk func([]*types.FileTreeNode, int)
	walk = func(level []*types.FileTreeNode, depth int) {
		for _, n := range level {
			b.WriteString(strings.Repeat("  ", depth))
			b.WriteString(n.Name)
			if n.IsDir() {
				b.WriteString("/\n")
				walk(n.Children, depth+1)
				continue
			}
			b.WriteString("\n")
		}
	}
	walk(nodes, 0)
	return b.String()
}

// level is one directory's children while the tree is being assembled. byName keeps
// names unique; order is only fixed when nodes() sorts.
type level struct {
	byName map[string]*types.FileTreeNode
	subs   map[string]*level
}

func newLevel() *level {
	return &level{byName: map[string]*types.FileTreeNode{}, subs: map[string]*level{}}
}

func (l *level) dir(name, path string) *level {
	if n, ok := l.byName[name]; ok && n.IsDir() {
		return l.subs[name]
	}
	l.byName[name] = &types.FileTreeNode{Name: name, Path: path, Kind: types.KindDirectory}
	sub := newLevel()
	l.subs[name] = sub
	return sub
}

func (l *level) put(n *types.FileTreeNode) {
	delete(l.subs, n.Name)
	l.byName[n.Name] = n
}

func (l *level) nodes() []*types.FileTreeNode {
	out := make([]*types.FileTreeNode, 0, len(l.byName))
	for name, n := range l.byName {
		if n.IsDir() {
			n.Children = l.subs[name].nodes()
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDir() != out[j].IsDir() {
			return out[i].IsDir()
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func splitPath(p string) []string {
	parts := strings.Split(strings.ReplaceAll(p, "\\", "/"), "/")
	out := parts[:0]
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s == "" || s == "." {
			continue
		}
		out = append(out, s)
	}
	return out
}
