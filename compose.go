package playground

import (
	"embed"
	"encoding/json"
	"strings"
	"text/template"
)

//go:embed preview/*.html
var previewFS embed.FS

// text/template on purpose: the html, css and javascript buffers are inserted verbatim.
var previewTemplates = template.Must(template.ParseFS(previewFS, "preview/*.html"))

// DefaultRunEndpoint is where interpreter preview documents post their source.
// A relative URL resolves against the page hosting the preview frame.
const DefaultRunEndpoint = "/api/run"

// ComposeOptions tunes the generated documents.
type ComposeOptions struct {
	RunEndpoint string
	Title       string
}

// DefaultComposeOptions returns the options used by the served pages.
func DefaultComposeOptions() ComposeOptions {
	return ComposeOptions{RunEndpoint: DefaultRunEndpoint}
}

// DocumentKind tells which strategy Compose picked.
type DocumentKind string

const (
	MarkupDocument      DocumentKind = "markup"
	InterpreterDocument DocumentKind = "interpreter"
)

// KindFor reports which document Compose produces for b and active.
// The interpreter document is only used while the python tab is active and has code.
func KindFor(b Buffers, active Language) DocumentKind {
	if b.Python != "" && active == Python {
		return InterpreterDocument
	}
	return MarkupDocument
}

// Compose builds a complete, standalone preview document from the buffers.
// It is pure: the same input always yields the same document.
func Compose(b Buffers, active Language, opts ComposeOptions) string {
	if KindFor(b, active) == InterpreterDocument {
		return composeInterpreter(b.Python, opts)
	}
	return composeMarkup(b, opts)
}

func composeMarkup(b Buffers, opts ComposeOptions) string {
	title := opts.Title
	if title == "" {
		title = "Code Preview"
	}
	return render("markup.html", map[string]string{
		"Title":      title,
		"HTML":       b.HTML,
		"CSS":        b.CSS,
		"JavaScript": b.JavaScript,
	})
}

func composeInterpreter(src string, opts ComposeOptions) string {
	title := opts.Title
	if title == "" {
		title = "Python Code Preview"
	}
	endpoint := opts.RunEndpoint
	if endpoint == "" {
		endpoint = DefaultRunEndpoint
	}
	return render("interpreter.html", map[string]string{
		"Title":         title,
		"EscapedSource": EscapeSource(src),
		"SourceJSON":    jsString(src),
		"EndpointJSON":  jsString(endpoint),
	})
}

var sourceEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// EscapeSource escapes angle brackets so python source displays verbatim in a code block.
func EscapeSource(src string) string {
	return sourceEscaper.Replace(src)
}

// jsString encodes s as a JavaScript string literal. encoding/json escapes <, > and &,
// so the literal cannot close the surrounding script element.
func jsString(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(data)
}

func render(name string, data map[string]string) string {
	var b strings.Builder
	// Writes to a strings.Builder cannot fail and the templates only read string fields.
	_ = previewTemplates.ExecuteTemplate(&b, name, data)
	return b.String()
}
