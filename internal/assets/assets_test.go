package assets

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"
)

func TestGetEditorJS(t *testing.T) {
	data, err := GetEditorJS()
	if err != nil {
		t.Fatalf("GetEditorJS failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("GetEditorJS returned empty data")
	}
}

func TestEditorJSProtocol(t *testing.T) {
	data, err := GetEditorJS()
	if err != nil {
		t.Fatalf("GetEditorJS failed: %v", err)
	}
	js := string(data)
	// Edits name their tab, reconnects carry the page's client id, and the
	// keyboard shortcuts are Ctrl/Cmd-R, Ctrl/Cmd-S, F11 and Escape.
	for _, want := range []string{
		"send('edit', { text: editor.getValue(), tab: editorTab })",
		"params.set('client', clientId)",
		"case 'r':",
		"case 's':",
		"e.key === 'F11'",
		"e.key === 'Escape'",
	} {
		if !strings.Contains(js, want) {
			t.Errorf("editor.js lacks %q", want)
		}
	}
}

func TestGetEditorCSS(t *testing.T) {
	data, err := GetEditorCSS()
	if err != nil {
		t.Fatalf("GetEditorCSS failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("GetEditorCSS returned empty data")
	}
}

func TestStaticFS(t *testing.T) {
	for _, name := range []string{"editor.js", "editor.css", "page.html"} {
		if _, err := fs.Stat(StaticFS(), name); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestPageRenders(t *testing.T) {
	var buf bytes.Buffer
	err := Page().Execute(&buf, PageData{
		Surface:       "practice",
		Title:         "DevLearn Practice",
		Version:       "v1.0.0",
		Tabs:          []Tab{{ID: "html", Label: "HTML"}, {ID: "css", Label: "CSS"}},
		Templates:     []Item{{Name: "landing-page", Title: "Landing Page"}},
		Practice:      []Item{{Name: "calculator", Title: "Calculator <Challenge>"}},
		PracticeLabel: "Challenges",
		SocketQuery:   "surface=practice&template=landing-page",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	html := buf.String()
	for _, want := range []string{
		`<title>DevLearn Practice</title>`,
		`sandbox="allow-scripts allow-modals"`,
		`data-tab="css"`,
		`<option value="landing-page">Landing Page</option>`,
		`Calculator &lt;Challenge&gt;`,
		`data-socket-query="surface=practice&amp;template=landing-page"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
}
