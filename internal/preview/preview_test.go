package preview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blossom/internal/types"
)

func TestRenderEmptyIsPlaceholder(t *testing.T) {
	assert.Equal(t, PlaceholderDocument, Render(nil))
	assert.Equal(t, PlaceholderDocument, Render([]types.GeneratedFile{}))
}

func TestRenderDowngradesAppComponent(t *testing.T) {
	doc := Render([]types.GeneratedFile{
		{Path: "App.tsx", Content: "export default function App(){return <div>Hi</div>}"},
	})
	assert.Contains(t, doc, "<div>Hi</div>")
	assert.Contains(t, doc, "<!DOCTYPE html>")
}

func TestRenderPrefersAppOverIndex(t *testing.T) {
	files := []types.GeneratedFile{
		{Path: "index.html", Content: "<p>index</p>"},
		{Path: "src/App.jsx", Content: "const App = () => (\n  <main>app</main>\n);\nexport default App;"},
	}
	doc := Render(files)
	assert.Contains(t, doc, "<main>app</main>")
	assert.NotContains(t, doc, "<p>index</p>")
}

func TestSelectEntry(t *testing.T) {
	cases := []struct {
		name  string
		paths []string
		want  string
	}{
		{"app first", []string{"main.tsx", "src/App.tsx"}, "src/App.tsx"},
		{"index before others", []string{"styles.css", "About.tsx", "index.html"}, "index.html"},
		{"markup index beats plain main", []string{"main.ts", "index.html"}, "index.html"},
		{"first file fallback", []string{"README.md", "package.json"}, "README.md"},
		{"case insensitive", []string{"APP.HTML", "index.html"}, "APP.HTML"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var files []types.GeneratedFile
			for _, p := range tc.paths {
				files = append(files, types.GeneratedFile{Path: p})
			}
			assert.Equal(t, tc.want, SelectEntry(files).Path)
		})
	}
}

func TestRenderHTMLDocumentKeptWithInlinedCSS(t *testing.T) {
	page := "<!DOCTYPE html>\n<html><head><title>x</title></head><body><h1>Hello</h1></body></html>"
	doc := Render([]types.GeneratedFile{
		{Path: "index.html", Content: page},
		{Path: "styles.css", Content: "h1 { color: red; }"},
	})
	assert.Contains(t, doc, "<h1>Hello</h1>")
	assert.Contains(t, doc, "<style>h1 { color: red; }</style>\n</head>")
	assert.Equal(t, 1, strings.Count(strings.ToLower(doc), "<html"))
}

func TestRenderHTMLFragmentWrapped(t *testing.T) {
	doc := Render([]types.GeneratedFile{
		{Path: "index.html", Content: "<section>fragment</section>"},
		{Path: "app.css", Content: "section { margin: 0 }"},
	})
	assert.Contains(t, doc, "<section>fragment</section>")
	assert.Contains(t, doc, "<style>section { margin: 0 }</style>")
	assert.Contains(t, doc, "<title>index.html</title>")
}

func TestRenderNonMarkupShowsSource(t *testing.T) {
	doc := Render([]types.GeneratedFile{{Path: "notes.md", Content: "# <Title>"}})
	assert.Contains(t, doc, `<pre class="blossom-source">`)
	assert.Contains(t, doc, "# &lt;Title&gt;")
}

func TestRenderMalformedFallsBackToPlaceholderBlock(t *testing.T) {
	var doc string
	require.NotPanics(t, func() {
		doc = Render([]types.GeneratedFile{
			{Path: "App.tsx", Content: "export default function App() { return (<div>{broken</div>) }"},
		})
	})
	assert.Contains(t, doc, "Preview unavailable for App.tsx")
	assert.Contains(t, doc, "unbalanced")
}

func TestRenderScriptWithoutMarkup(t *testing.T) {
	doc := Render([]types.GeneratedFile{{Path: "main.ts", Content: "console.log(1)"}})
	assert.Contains(t, doc, "Preview unavailable for main.ts")
}

func TestDowngradeJSX(t *testing.T) {
	src := `import Button from './Button';

export default function App() {
  const [count, setCount] = useState(0);
  return (
    <>
      {/* header */}
      <header className="top" style={{ marginTop: 4, color: 'red' }}>
        <label htmlFor="q">{"Search"}</label>
        <input id="q" type="text" value={query} onChange={(e) => setQuery(e.target.value)} />
      </header>
      <p>Count: {count} of {10}</p>
      <Button variant="primary" onClick={() => setCount(count + 1)}>Add</Button>
      <Spinner />
      <ul>{items.map((i) => <li key={i}>{i}</li>)}</ul>
    </>
  );
}`
	got, err := DowngradeJSX(src)
	require.NoError(t, err)

	assert.Contains(t, got, `<header class="top" style="margin-top: 4; color: red">`)
	assert.Contains(t, got, `<label for="q">Search</label>`)
	assert.Contains(t, got, `<input id="q" type="text"/>`)
	assert.Contains(t, got, "<p>Count:  of 10</p>")
	assert.Contains(t, got, `<div data-component="Button" variant="primary">Add</div>`)
	assert.Contains(t, got, `<div data-component="Spinner"></div>`)
	assert.Contains(t, got, "<ul></ul>")

	for _, gone := range []string{"onClick", "onchange", "className", "htmlFor", "{", "}", "header */"} {
		assert.NotContains(t, got, gone)
	}
}

func TestDowngradeJSXPicksLongestReturn(t *testing.T) {
	src := `function Small() { return (<i>small</i>); }
export default function Page() {
  return (
    <article><h1>Title</h1><p>Body (with parens)</p></article>
  );
}`
	got, err := DowngradeJSX(src)
	require.NoError(t, err)
	assert.Equal(t, "<article><h1>Title</h1><p>Body (with parens)</p></article>", got)
}

func TestDowngradeJSXErrors(t *testing.T) {
	_, err := DowngradeJSX("export const x = 1;")
	assert.ErrorIs(t, err, errNoMarkup)

	_, err = DowngradeJSX("return (<div>{a</div>)")
	assert.ErrorIs(t, err, errUnbalanced)
}

func TestFrameDefaultSandbox(t *testing.T) {
	frame := Frame(`<p class="x">"quoted" & more</p>`, DefaultSandbox())
	assert.Contains(t, frame, `sandbox="allow-scripts"`)
	assert.NotContains(t, frame, "allow-same-origin")
	assert.NotContains(t, frame, "allow-top-navigation")
	assert.Contains(t, frame, `srcdoc="&lt;p class=&#34;x&#34;&gt;&#34;quoted&#34; &amp; more&lt;/p&gt;"`)
}

func TestSandboxTokens(t *testing.T) {
	all := SandboxOptions{AllowScripts: true, AllowSameOrigin: true, AllowForms: true, AllowModals: true}
	assert.Equal(t, "allow-scripts allow-same-origin allow-forms allow-modals", all.Tokens())
	assert.Equal(t, "sandbox allow-scripts allow-same-origin allow-forms allow-modals", all.ContentSecurityPolicy())

	none := SandboxOptions{}
	assert.Equal(t, "", none.Tokens())
	assert.Equal(t, "sandbox", none.ContentSecurityPolicy())
	assert.Contains(t, Frame("", none), `sandbox=""`)
}
