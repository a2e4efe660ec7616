// Package catalog holds the read-only starter bundles: templates, practice
// scenarios, practice challenges and the per-surface defaults.
package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	playground "github.com/devlearn/playground"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Data file names, in the embedded set and in an override directory.
const (
	TemplatesFile  = "templates.yaml"
	ScenariosFile  = "scenarios.yaml"
	ChallengesFile = "challenges.yaml"
	DefaultsFile   = "defaults.yaml"
)

// Surfaces with their own defaults.
const (
	SurfaceEditor   = "editor"
	SurfacePractice = "practice"
)

// entry is the YAML layout of one bundle.
type entry struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	HTML        string `yaml:"html"`
	CSS         string `yaml:"css"`
	JavaScript  string `yaml:"javascript"`
	Python      string `yaml:"python"`
}

func (e entry) bundle(kind playground.BundleKind) playground.Bundle {
	return playground.Bundle{
		Name:        e.Name,
		Title:       e.Title,
		Description: e.Description,
		Kind:        kind,
		Buffers: playground.Buffers{
			HTML:       e.HTML,
			CSS:        e.CSS,
			JavaScript: e.JavaScript,
			Python:     e.Python,
		},
	}
}

// Catalog is an immutable, ordered set of bundles of one kind.
type Catalog struct {
	kind    playground.BundleKind
	bundles []playground.Bundle
	index   map[string]int
}

// New builds a catalog. Names must be unique and non-empty.
func New(kind playground.BundleKind, bundles []playground.Bundle) (*Catalog, error) {
	c := &Catalog{kind: kind, index: make(map[string]int, len(bundles))}
	for _, b := range bundles {
		if b.Name == "" {
			return nil, fmt.Errorf("%s without a name", kind)
		}
		if _, dup := c.index[b.Name]; dup {
			return nil, fmt.Errorf("duplicate %s %q", kind, b.Name)
		}
		b.Kind = kind
		if b.Title == "" {
			b.Title = b.Name
		}
		c.index[b.Name] = len(c.bundles)
		c.bundles = append(c.bundles, b)
	}
	return c, nil
}

// Kind returns the kind of every bundle in the catalog.
func (c *Catalog) Kind() playground.BundleKind { return c.kind }

// Lookup finds a bundle by name.
func (c *Catalog) Lookup(name string) (playground.Bundle, bool) {
	i, ok := c.index[name]
	if !ok {
		return playground.Bundle{}, false
	}
	return c.bundles[i], true
}

// List returns the bundles in file order.
func (c *Catalog) List() []playground.Bundle {
	return append([]playground.Bundle(nil), c.bundles...)
}

// Names returns the bundle names in file order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.bundles))
	for i, b := range c.bundles {
		names[i] = b.Name
	}
	return names
}

// Len returns the number of bundles.
func (c *Catalog) Len() int { return len(c.bundles) }

// Set is one consistent snapshot of every catalog.
type Set struct {
	Templates  *Catalog
	Scenarios  *Catalog
	Challenges *Catalog
	defaults   map[string]playground.Buffers
}

// Default returns the startup buffers for a surface. Unknown surfaces get the editor's.
func (s *Set) Default(surface string) playground.Buffers {
	if b, ok := s.defaults[surface]; ok {
		return b
	}
	return s.defaults[SurfaceEditor]
}

// Practice returns the catalog a surface loads practice bundles from:
// challenges on the practice surface, scenarios on the editor.
func (s *Set) Practice(surface string) *Catalog {
	if surface == SurfacePractice {
		return s.Challenges
	}
	return s.Scenarios
}

// Find looks a name up across every catalog, templates first.
func (s *Set) Find(name string) (playground.Bundle, bool) {
	for _, c := range []*Catalog{s.Templates, s.Scenarios, s.Challenges} {
		if b, ok := c.Lookup(name); ok {
			return b, true
		}
	}
	return playground.Bundle{}, false
}

// Load reads the embedded catalogs. When dir is set, files there with the same
// names overlay them: a bundle with a known name replaces it, others are appended.
func Load(dir string) (*Set, error) {
	templates, err := loadBundles(dir, TemplatesFile, playground.KindTemplate)
	if err != nil {
		return nil, err
	}
	scenarios, err := loadBundles(dir, ScenariosFile, playground.KindScenario)
	if err != nil {
		return nil, err
	}
	challenges, err := loadBundles(dir, ChallengesFile, playground.KindChallenge)
	if err != nil {
		return nil, err
	}
	defaults, err := loadDefaults(dir)
	if err != nil {
		return nil, err
	}
	return &Set{
		Templates:  templates,
		Scenarios:  scenarios,
		Challenges: challenges,
		defaults:   defaults,
	}, nil
}

func loadBundles(dir, file string, kind playground.BundleKind) (*Catalog, error) {
	var entries []entry
	if err := decode(dataFS, "data/"+file, &entries); err != nil {
		return nil, err
	}

	if dir != "" {
		var overlay []entry
		err := decode(os.DirFS(dir), file, &overlay)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		entries = merge(entries, overlay)
	}

	bundles := make([]playground.Bundle, len(entries))
	for i, e := range entries {
		bundles[i] = e.bundle(kind)
	}
	c, err := New(kind, bundles)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return c, nil
}

func merge(base, overlay []entry) []entry {
	index := make(map[string]int, len(base))
	for i, e := range base {
		index[e.Name] = i
	}
	for _, e := range overlay {
		if i, ok := index[e.Name]; ok {
			base[i] = e
			continue
		}
		index[e.Name] = len(base)
		base = append(base, e)
	}
	return base
}

func loadDefaults(dir string) (map[string]playground.Buffers, error) {
	var entries map[string]entry
	if err := decode(dataFS, "data/"+DefaultsFile, &entries); err != nil {
		return nil, err
	}
	if dir != "" {
		var overlay map[string]entry
		err := decode(os.DirFS(dir), DefaultsFile, &overlay)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		for surface, e := range overlay {
			entries[surface] = e
		}
	}

	defaults := make(map[string]playground.Buffers, len(entries))
	for surface, e := range entries {
		defaults[surface] = e.bundle("").Buffers
	}
	if _, ok := defaults[SurfaceEditor]; !ok {
		return nil, fmt.Errorf("%s: missing %q defaults", DefaultsFile, SurfaceEditor)
	}
	return defaults, nil
}

func decode(fsys fs.FS, name string, v any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(name), err)
	}
	return nil
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// DescriptionHTML renders a bundle description from Markdown. Raw HTML in the
// description is omitted.
func DescriptionHTML(b playground.Bundle) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(b.Description), &buf); err != nil {
		return "", fmt.Errorf("render description of %q: %w", b.Name, err)
	}
	return buf.String(), nil
}
