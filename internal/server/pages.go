package server

import (
	"bytes"
	"net/http"
	"net/url"

	"pkt.systems/pslog"

	playground "github.com/devlearn/playground"
	"github.com/devlearn/playground/internal/assets"
	"github.com/devlearn/playground/internal/catalog"
	"github.com/devlearn/playground/internal/config"
)

var tabLabels = map[playground.Language]string{
	playground.HTML:       "HTML",
	playground.CSS:        "CSS",
	playground.JavaScript: "JavaScript",
	playground.Python:     "Python",
}

func pageTabs() []assets.Tab {
	tabs := make([]assets.Tab, 0, len(playground.Languages))
	for _, lang := range playground.Languages {
		tabs = append(tabs, assets.Tab{ID: string(lang), Label: tabLabels[lang]})
	}
	return tabs
}

func menuItems(c *catalog.Catalog) []assets.Item {
	bundles := c.List()
	items := make([]assets.Item, 0, len(bundles))
	for _, b := range bundles {
		items = append(items, assets.Item{Name: b.Name, Title: b.Title})
	}
	return items
}

// pageData builds the shell for one surface. The startup selection is handed
// to the socket so the workspace applies it.
func (s *Server) pageData(surface string, query url.Values) assets.PageData {
	set := s.library.Current()

	socket := url.Values{}
	socket.Set("surface", surface)
	for _, key := range []string{"template", "practice"} {
		if v := query.Get(key); v != "" {
			socket.Set(key, v)
		}
	}

	data := assets.PageData{
		Surface:       surface,
		Title:         "DevLearn Code Editor",
		Version:       config.GetVersion(),
		Tabs:          pageTabs(),
		Templates:     menuItems(set.Templates),
		Practice:      menuItems(set.Practice(surface)),
		PracticeLabel: "Scenarios",
		SocketQuery:   socket.Encode(),
	}
	if surface == catalog.SurfacePractice {
		data.Title = "DevLearn Practice"
		data.PracticeLabel = "Challenges"
	}
	return data
}

func (s *Server) servePage(surface string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := assets.Page().Execute(&buf, s.pageData(surface, r.URL.Query())); err != nil {
			pslog.Ctx(r.Context()).Error("page.render.failed", "surface", surface, "err", err)
			http.Error(w, "failed to render page", http.StatusInternalServerError)
			return
		}

		if _, fresh := deviceID(r); fresh {
			http.SetCookie(w, deviceCookie(randomID()))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(buf.Bytes())
	}
}

// servePreview returns the last document of a session for "open in new window".
// The document runs sandboxed, as it does inside the preview frame.
func (s *Server) servePreview(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.previews.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "preview expired", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Security-Policy", "sandbox allow-scripts allow-modals")
	_, _ = w.Write([]byte(snap.Document))
}
