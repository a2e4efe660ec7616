package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"pkt.systems/pslog"

	playground "github.com/devlearn/playground"
	"github.com/devlearn/playground/internal/catalog"
	"github.com/devlearn/playground/internal/config"
)

// maxRequestBodySize limits the size of incoming request bodies (1MB)
const maxRequestBodySize = 1 << 20

type runRequest struct {
	Source string `json:"source"`
}

type runResponse struct {
	Output string `json:"output"`
}

// handleRun executes python for interpreter preview documents. Failures of the
// user's program come back as output; only host failures are errors.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if s.bridge == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "Python is not available on this server")
		return
	}

	log := pslog.Ctx(r.Context())
	out, err := s.bridge.Run(r.Context(), req.Source)
	if err != nil {
		log.Error("api.run.failed", "state", s.bridge.State(), "err", err)
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Output: out})
}

type composeRequest struct {
	playground.Buffers
	Tab string `json:"tab"`
}

type composeResponse struct {
	Document string                  `json:"document"`
	Kind     playground.DocumentKind `json:"kind"`
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	active := playground.HTML
	if req.Tab != "" {
		lang, err := playground.ParseLanguage(req.Tab)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		active = lang
	}
	writeJSON(w, http.StatusOK, composeResponse{
		Document: playground.Compose(req.Buffers, active, playground.DefaultComposeOptions()),
		Kind:     playground.KindFor(req.Buffers, active),
	})
}

type catalogKind int

const (
	kindTemplates catalogKind = iota
	kindScenarios
	kindChallenges
)

func (s *Server) catalogFor(kind catalogKind) *catalog.Catalog {
	set := s.library.Current()
	switch kind {
	case kindScenarios:
		return set.Scenarios
	case kindChallenges:
		return set.Challenges
	}
	return set.Templates
}

type bundleSummary struct {
	Name  string                `json:"name"`
	Title string                `json:"title"`
	Kind  playground.BundleKind `json:"kind"`
}

type bundleDetail struct {
	bundleSummary
	Description     string             `json:"description,omitempty"`
	DescriptionHTML string             `json:"description_html,omitempty"`
	Buffers         playground.Buffers `json:"buffers"`
}

func (s *Server) handleList(kind catalogKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bundles := s.catalogFor(kind).List()
		out := make([]bundleSummary, 0, len(bundles))
		for _, b := range bundles {
			out = append(out, bundleSummary{Name: b.Name, Title: b.Title, Kind: b.Kind})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleShow(kind catalogKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		b, ok := s.catalogFor(kind).Lookup(name)
		if !ok {
			writeJSONError(w, http.StatusNotFound, (&playground.NotFoundError{Kind: string(s.catalogFor(kind).Kind()), Name: name}).Error())
			return
		}
		desc, err := catalog.DescriptionHTML(b)
		if err != nil {
			pslog.Ctx(r.Context()).Warn("api.catalog.description_failed", "name", name, "err", err)
		}
		writeJSON(w, http.StatusOK, bundleDetail{
			bundleSummary:   bundleSummary{Name: b.Name, Title: b.Title, Kind: b.Kind},
			Description:     b.Description,
			DescriptionHTML: desc,
			Buffers:         b.Buffers,
		})
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Interpreter string `json:"interpreter"`
	Sessions    int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := "disabled"
	if s.bridge != nil {
		state = s.bridge.State().String()
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Version:     config.GetVersion(),
		Interpreter: state,
		Sessions:    s.Sessions(),
	})
}

// decodeBody reads a JSON request body, replying 400 or 413 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
