package playground

import "sync"

// Surface is the editing surface the tab controller drives. In the served pages
// it mirrors the browser's CodeMirror instance.
type Surface interface {
	Value() string
	SetValue(text string)
	SetMode(mode SyntaxMode)
}

// Tabs tracks the active tab and moves text between the surface and the store.
type Tabs struct {
	mu      sync.Mutex
	store   *Store
	surface Surface
	active  Language
}

// NewTabs creates a controller on the html tab.
func NewTabs(store *Store, surface Surface) *Tabs {
	return &Tabs{store: store, surface: surface, active: HTML}
}

// Active returns the current tab.
func (t *Tabs) Active() Language {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Switch flushes the surface into the outgoing buffer, then loads the incoming
// buffer and its syntax mode. An unknown tab leaves all state untouched.
func (t *Tabs) Switch(to Language) error {
	if !to.Valid() {
		return ErrUnknownLanguage
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.store.Set(t.active, t.surface.Value())
	t.active = to
	if ta, ok := t.surface.(TabAware); ok {
		ta.SetTab(to)
	}
	t.surface.SetValue(t.store.Get(to))
	t.surface.SetMode(ModeFor(to))
	return nil
}

// TabAware is implemented by surfaces that label their content with its tab.
// SetTab is called before the incoming buffer is loaded.
type TabAware interface {
	SetTab(lang Language)
}

// Observer is implemented by surfaces that mirror a remote editor. Edits made
// in the remote editor are observed without being echoed back to it.
type Observer interface {
	Observe(text string)
}

// Edit records new surface content for the active tab.
func (t *Tabs) Edit(text string) Language {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o, ok := t.surface.(Observer); ok {
		o.Observe(text)
	}
	t.store.Set(t.active, text)
	return t.active
}

// EditIn records text typed while the surface showed lang. Text for a tab that
// is no longer active only updates that tab's buffer; the surface keeps the
// active tab's content.
func (t *Tabs) EditIn(lang Language, text string) error {
	if !lang.Valid() {
		return ErrUnknownLanguage
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if lang == t.active {
		if o, ok := t.surface.(Observer); ok {
			o.Observe(text)
		}
	}
	t.store.Set(lang, text)
	return nil
}

// Reload pushes the active buffer back into the surface after a bulk replacement.
func (t *Tabs) Reload() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.surface.SetValue(t.store.Get(t.active))
}

// MemorySurface is a Surface that only remembers what it was told.
// It backs the CLI and tests, and the server wraps it to notify the browser.
type MemorySurface struct {
	mu    sync.Mutex
	value string
	mode  SyntaxMode
}

// NewMemorySurface creates a surface in html mode.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{mode: ModeFor(HTML)}
}

func (s *MemorySurface) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *MemorySurface) SetValue(text string) {
	s.mu.Lock()
	s.value = text
	s.mu.Unlock()
}

func (s *MemorySurface) SetMode(mode SyntaxMode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// Observe records text typed into the surface.
func (s *MemorySurface) Observe(text string) {
	s.SetValue(text)
}

// Mode returns the last mode set.
func (s *MemorySurface) Mode() SyntaxMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}
