package playground

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"
	"pkt.systems/pslog"
)

// BundleKind distinguishes the starter catalogs.
type BundleKind string

const (
	KindTemplate  BundleKind = "template"
	KindScenario  BundleKind = "scenario"
	KindChallenge BundleKind = "challenge"
)

// Bundle is a named, read-only starter project.
type Bundle struct {
	Name        string
	Title       string
	Description string
	Kind        BundleKind
	Buffers     Buffers
}

// Catalog resolves starter bundles by name.
type Catalog interface {
	Lookup(name string) (Bundle, bool)
}

// Persister stores one buffer set per surface.
type Persister interface {
	Save(ctx context.Context, b Buffers) error
	// Load reports false when nothing usable is stored.
	Load(ctx context.Context) (Buffers, bool)
}

// PreviewSink receives every composed document.
type PreviewSink func(doc string, kind DocumentKind)

// Level is the severity of a user-facing notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Result is what every workspace command reports back to the page.
type Result struct {
	OK      bool   `json:"ok"`
	Level   Level  `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
}

func ok(level Level, format string, args ...any) Result {
	return Result{OK: true, Level: level, Message: fmt.Sprintf(format, args...)}
}

func failed(level Level, format string, args ...any) Result {
	return Result{OK: false, Level: level, Message: fmt.Sprintf(format, args...)}
}

// StartParams is the startup selection read from the page's query string.
type StartParams struct {
	Template string // ?template=
	Practice string // ?practice=
}

// Options configures a Workspace.
type Options struct {
	Surface   Surface
	Persister Persister
	Templates Catalog
	// Scenarios holds the practice bundles: scenarios on the editor,
	// challenges on the practice surface.
	Scenarios Catalog
	Defaults  Buffers
	Sink      PreviewSink
	Compose   ComposeOptions
	Clock     clock.WithDelayedExecution
	Debounce  time.Duration
	Logger    pslog.Logger
}

// Workspace is one open playground: the buffers of a single browser tab plus
// the commands the page can issue against them.
type Workspace struct {
	store     *Store
	tabs      *Tabs
	debounce  *Debouncer
	persister Persister
	templates Catalog
	scenarios Catalog
	defaults  Buffers
	sink      PreviewSink
	compose   ComposeOptions
	log       pslog.Logger
}

// NewWorkspace creates a workspace holding opts.Defaults. Call Start to apply
// the startup selection and render the first preview.
func NewWorkspace(opts Options) *Workspace {
	surface := opts.Surface
	if surface == nil {
		surface = NewMemorySurface()
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	sink := opts.Sink
	if sink == nil {
		sink = func(string, DocumentKind) {}
	}

	w := &Workspace{
		store:     NewStore(opts.Defaults),
		persister: opts.Persister,
		templates: opts.Templates,
		scenarios: opts.Scenarios,
		defaults:  opts.Defaults,
		sink:      sink,
		compose:   opts.Compose,
		log:       logger,
	}
	w.tabs = NewTabs(w.store, surface)
	w.debounce = NewDebouncer(opts.Clock, opts.Debounce, w.render)
	return w
}

// Start applies the startup selection: a known template wins, then a known
// practice scenario, otherwise the defaults stay. The first preview is composed immediately.
func (w *Workspace) Start(params StartParams) Result {
	res := Result{OK: true}
	switch {
	case params.Template != "" && w.has(w.templates, params.Template):
		res = w.LoadTemplate(params.Template)
	case params.Practice != "" && w.has(w.scenarios, params.Practice):
		b, _ := w.scenarios.Lookup(params.Practice)
		w.replace(b.Buffers)
		w.log.Info("workspace.start.scenario", "name", params.Practice)
	default:
		if params.Template != "" || params.Practice != "" {
			w.log.Debug("workspace.start.unknown", "template", params.Template, "practice", params.Practice)
		}
		w.replace(w.defaults)
	}
	return res
}

func (w *Workspace) has(c Catalog, name string) bool {
	if c == nil {
		return false
	}
	_, found := c.Lookup(name)
	return found
}

// Store exposes the buffer store.
func (w *Workspace) Store() *Store {
	return w.store
}

// Active returns the active tab.
func (w *Workspace) Active() Language {
	return w.tabs.Active()
}

// Snapshot returns the current buffers.
func (w *Workspace) Snapshot() Buffers {
	return w.store.Snapshot()
}

// Document composes the current buffers without sending them anywhere.
func (w *Workspace) Document() (string, DocumentKind) {
	b := w.store.Snapshot()
	active := w.tabs.Active()
	return Compose(b, active, w.compose), KindFor(b, active)
}

// Edit records text typed into the active tab and schedules a recomposition.
func (w *Workspace) Edit(text string) Result {
	w.tabs.Edit(text)
	w.debounce.Trigger()
	return Result{OK: true}
}

// EditIn records text typed into tab lang, which may have been switched away
// from since the text was typed.
func (w *Workspace) EditIn(lang Language, text string) Result {
	if err := w.tabs.EditIn(lang, text); err != nil {
		return failed(LevelError, "Unknown tab %q", lang)
	}
	w.debounce.Trigger()
	return Result{OK: true}
}

// SwitchTab moves the editor to another language tab. The flush of the
// outgoing tab counts as an edit, so a recomposition is scheduled.
func (w *Workspace) SwitchTab(lang Language) Result {
	if err := w.tabs.Switch(lang); err != nil {
		return failed(LevelError, "Unknown tab %q", lang)
	}
	w.debounce.Trigger()
	return Result{OK: true}
}

// RunNow composes immediately. A pending automatic recomposition is dropped
// since it would render the same buffers.
func (w *Workspace) RunNow() Result {
	w.debounce.Flush()
	return Result{OK: true}
}

// Save persists the buffers, overwriting what was saved before.
func (w *Workspace) Save(ctx context.Context) Result {
	if w.persister == nil {
		return failed(LevelError, "Saving is not available")
	}
	if err := w.persister.Save(ctx, w.store.Snapshot()); err != nil {
		w.log.Error("workspace.save.failed", "err", err)
		return failed(LevelError, "Could not save code")
	}
	return ok(LevelSuccess, "Code saved successfully!")
}

// LoadSaved replaces the buffers with the saved state, if there is one.
func (w *Workspace) LoadSaved(ctx context.Context) Result {
	if w.persister == nil {
		return failed(LevelInfo, "No saved code found")
	}
	b, found := w.persister.Load(ctx)
	if !found {
		return failed(LevelInfo, "No saved code found")
	}
	w.replace(b)
	return ok(LevelSuccess, "Code loaded successfully!")
}

// Clear empties every buffer.
func (w *Workspace) Clear() Result {
	w.replace(Buffers{})
	return ok(LevelSuccess, "Code cleared!")
}

// LoadTemplate loads a template. Templates carry no python, so the python buffer is cleared.
func (w *Workspace) LoadTemplate(name string) Result {
	b, err := w.lookup(w.templates, KindTemplate, name)
	if err != nil {
		return failed(LevelError, "Template %q not found", name)
	}
	w.replace(b.Buffers.WithoutPython())
	return ok(LevelSuccess, "Template %q loaded!", name)
}

// LoadScenario loads a practice scenario or challenge.
func (w *Workspace) LoadScenario(name string) Result {
	b, err := w.lookup(w.scenarios, KindScenario, name)
	if err != nil {
		return failed(LevelError, "Challenge %q not found", name)
	}
	if b.Kind == KindChallenge {
		w.replace(b.Buffers.WithoutPython())
	} else {
		w.replace(b.Buffers)
	}
	return ok(LevelSuccess, "Challenge %q loaded!", name)
}

// Resume repaints the surface and the preview from the current buffers, for a
// surface that reattached after losing its view.
func (w *Workspace) Resume() {
	w.debounce.Cancel()
	w.tabs.Reload()
	w.render()
}

// Close drops any pending recomposition.
func (w *Workspace) Close() {
	w.debounce.Cancel()
}

func (w *Workspace) lookup(c Catalog, kind BundleKind, name string) (Bundle, error) {
	if c != nil {
		if b, found := c.Lookup(name); found {
			return b, nil
		}
	}
	w.log.Info("workspace.catalog.miss", "kind", kind, "name", name)
	return Bundle{}, &NotFoundError{Kind: string(kind), Name: name}
}

// replace swaps every buffer, refreshes the surface and renders right away.
func (w *Workspace) replace(b Buffers) {
	w.debounce.Cancel()
	w.store.Replace(b)
	w.tabs.Reload()
	w.render()
}

func (w *Workspace) render() {
	doc, kind := w.Document()
	w.sink(doc, kind)
}
