package playground

import "sync"

// Buffers holds the source text of every tab. The zero value is an empty set;
// a language that was never written reads as the empty string.
type Buffers struct {
	HTML       string `json:"html" yaml:"html"`
	CSS        string `json:"css" yaml:"css"`
	JavaScript string `json:"javascript" yaml:"javascript"`
	Python     string `json:"python" yaml:"python"`
}

// Get returns the text for lang, or "" for an unknown language.
func (b Buffers) Get(lang Language) string {
	switch lang {
	case HTML:
		return b.HTML
	case CSS:
		return b.CSS
	case JavaScript:
		return b.JavaScript
	case Python:
		return b.Python
	}
	return ""
}

// Set replaces the text for lang. Unknown languages are ignored.
func (b *Buffers) Set(lang Language, text string) {
	switch lang {
	case HTML:
		b.HTML = text
	case CSS:
		b.CSS = text
	case JavaScript:
		b.JavaScript = text
	case Python:
		b.Python = text
	}
}

// WithoutPython returns a copy with the interpreted buffer cleared.
// Templates and challenges only carry markup, style and script.
func (b Buffers) WithoutPython() Buffers {
	b.Python = ""
	return b
}

// Store is the buffer store shared by a workspace. It is safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	buf Buffers
}

// NewStore creates a store holding initial.
func NewStore(initial Buffers) *Store {
	return &Store{buf: initial}
}

func (s *Store) Get(lang Language) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.Get(lang)
}

func (s *Store) Set(lang Language, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Set(lang, text)
}

// Snapshot returns a copy of every buffer.
func (s *Store) Snapshot() Buffers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf
}

// Replace swaps the whole buffer set, as template and saved-state loads do.
func (s *Store) Replace(b Buffers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = b
}
