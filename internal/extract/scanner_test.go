package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathScannerSplitDeltas(t *testing.T) {
	s := NewPathScanner()
	assert.Empty(t, s.Feed("Here you go\n```tsx src/App"))
	assert.Equal(t, []string{"src/App.tsx"}, s.Feed(".tsx\nexport default 1\n```\n"))
	assert.Empty(t, s.Feed("// FI"))
	assert.Equal(t, []string{"src/a.css"}, s.Feed("LE: src/a.css\nbody{}\n"))
	assert.Empty(t, s.Feed("```tsx src/App.tsx\nagain\n```\n"))
	assert.Equal(t, []string{"src/App.tsx", "src/a.css"}, s.Paths())
}

func TestPathScannerManySmallDeltas(t *testing.T) {
	var b strings.Builder
	var want []string
	for i := 0; i < 200; i++ {
		path := fmt.Sprintf("src/mod%03d.ts", i)
		want = append(want, path)
		fmt.Fprintf(&b, "```ts %s\nexport const n%d = %d\n```\n\n", path, i, i)
	}
	text := b.String()

	s := NewPathScanner()
	var got []string
	for i := 0; i < len(text); i += 3 {
		end := min(i+3, len(text))
		got = append(got, s.Feed(text[i:end])...)
	}
	require.Equal(t, want, got)
	assert.Equal(t, PathsIn(text), got)
	assert.Less(t, len(s.pending), 64)
}
