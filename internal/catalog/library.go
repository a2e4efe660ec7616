package catalog

import (
	"sync/atomic"

	playground "github.com/devlearn/playground"
)

// Library serves the current catalog Set and swaps in a new one on Reload.
// Readers always see a complete snapshot.
type Library struct {
	dir     string
	current atomic.Pointer[Set]
}

// NewLibrary loads the catalogs, overlaid by dir when it is set.
func NewLibrary(dir string) (*Library, error) {
	l := &Library{dir: dir}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the override directory.
func (l *Library) Dir() string { return l.dir }

// Current returns the active snapshot.
func (l *Library) Current() *Set { return l.current.Load() }

// Reload rebuilds every catalog. On error the previous snapshot stays active.
func (l *Library) Reload() error {
	set, err := Load(l.dir)
	if err != nil {
		return err
	}
	l.current.Store(set)
	return nil
}

// Templates returns a catalog view that always resolves against the current snapshot.
func (l *Library) Templates() playground.Catalog {
	return view{l: l, pick: func(s *Set) *Catalog { return s.Templates }}
}

// Practice returns the practice catalog view for a surface.
func (l *Library) Practice(surface string) playground.Catalog {
	return view{l: l, pick: func(s *Set) *Catalog { return s.Practice(surface) }}
}

type view struct {
	l    *Library
	pick func(*Set) *Catalog
}

func (v view) Lookup(name string) (playground.Bundle, bool) {
	return v.pick(v.l.Current()).Lookup(name)
}
