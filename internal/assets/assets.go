// Package assets embeds the browser shell of the editor and practice pages.
package assets

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed static/*
var staticFS embed.FS

var pageTemplate = template.Must(template.ParseFS(staticFS, "static/page.html"))

// StaticFS returns the files served under /assets/.
func StaticFS() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetEditorJS returns the page script
func GetEditorJS() ([]byte, error) {
	return staticFS.ReadFile("static/editor.js")
}

// GetEditorCSS returns the page stylesheet
func GetEditorCSS() ([]byte, error) {
	return staticFS.ReadFile("static/editor.css")
}

// Tab is one language tab of the page.
type Tab struct {
	ID    string
	Label string
}

// Item is one entry of a template or practice menu.
type Item struct {
	Name  string
	Title string
}

// PageData fills page.html.
type PageData struct {
	Surface       string // "editor" or "practice"
	Title         string
	Version       string
	Tabs          []Tab
	Templates     []Item
	Practice      []Item
	PracticeLabel string
	// SocketQuery is appended to /ws, carrying the startup selection.
	SocketQuery string
}

// Page returns the page template.
func Page() *template.Template {
	return pageTemplate
}
