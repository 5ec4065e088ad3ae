package extract

import (
	"sort"
	"strings"
)

// PathScanner finds announced paths in text that arrives in pieces. Only the
// unfinished last line is kept and rescanned, so the cost of a stream stays linear in
// its length.
type PathScanner struct {
	pending string
	seen    map[string]bool
}

// NewPathScanner returns an empty scanner.
func NewPathScanner() *PathScanner {
	return &PathScanner{seen: map[string]bool{}}
}

// Feed appends delta and returns the paths seen for the first time, in order.
func (s *PathScanner) Feed(delta string) []string {
	s.pending += delta
	var fresh []string
	for _, p := range PathsIn(s.pending) {
		if !s.seen[p] {
			s.seen[p] = true
			fresh = append(fresh, p)
		}
	}
	if nl := strings.LastIndexByte(s.pending, '\n'); nl >= 0 {
		s.pending = s.pending[nl+1:]
	}
	return fresh
}

// Paths returns every path seen so far, sorted.
func (s *PathScanner) Paths() []string {
	all := make([]string, 0, len(s.seen))
	for p := range s.seen {
		all = append(all, p)
	}
	sort.Strings(all)
	return all
}
