// Package playground provides the core of the DevLearn code playground: per-language
// source buffers, the tab controller, preview document composition and the workspace
// command surface driven by the editor and practice pages.
package playground

import (
	"fmt"
	"strings"
)

// Language identifies one editor tab.
type Language string

const (
	HTML       Language = "html"
	CSS        Language = "css"
	JavaScript Language = "javascript"
	Python     Language = "python"
)

// Languages lists every supported tab in display order.
var Languages = []Language{HTML, CSS, JavaScript, Python}

// ParseLanguage resolves a tab identifier. Matching is case-insensitive.
func ParseLanguage(s string) (Language, error) {
	lang := Language(strings.ToLower(strings.TrimSpace(s)))
	if !lang.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
	}
	return lang, nil
}

// Valid reports whether l is one of the four supported tabs.
func (l Language) Valid() bool {
	switch l {
	case HTML, CSS, JavaScript, Python:
		return true
	}
	return false
}

func (l Language) String() string {
	return string(l)
}

// SyntaxMode describes how an editing surface highlights a language.
type SyntaxMode struct {
	Editor string `json:"editor"` // CodeMirror mode name
	Lexer  string `json:"lexer"`  // chroma lexer name
}

var syntaxModes = map[Language]SyntaxMode{
	HTML:       {Editor: "htmlmixed", Lexer: "html"},
	CSS:        {Editor: "css", Lexer: "css"},
	JavaScript: {Editor: "javascript", Lexer: "javascript"},
	Python:     {Editor: "python", Lexer: "python"},
}

// ModeFor returns the syntax mode for l. Unknown languages get the markup mode.
func ModeFor(l Language) SyntaxMode {
	if m, ok := syntaxModes[l]; ok {
		return m
	}
	return syntaxModes[HTML]
}
