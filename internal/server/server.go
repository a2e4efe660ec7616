// Package server serves the editor and practice pages, the live preview socket
// and the JSON API used by preview documents.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"k8s.io/utils/clock"
	"pkt.systems/pslog"

	"github.com/devlearn/playground/internal/assets"
	"github.com/devlearn/playground/internal/cache"
	"github.com/devlearn/playground/internal/catalog"
	"github.com/devlearn/playground/internal/config"
	"github.com/devlearn/playground/internal/interp"
	"github.com/devlearn/playground/internal/storage"
)

// Options wires a Server.
type Options struct {
	Config   *config.Config
	Library  *catalog.Library
	Store    storage.Store
	Bridge   *interp.Bridge
	Previews *cache.PreviewCache
	Clock    clock.WithDelayedExecution
	Logger   pslog.Logger
}

// Server is the playground HTTP server.
type Server struct {
	config   *config.Config
	library  *catalog.Library
	store    storage.Store
	bridge   *interp.Bridge
	previews *cache.PreviewCache
	clock    clock.WithDelayedExecution
	log      pslog.Logger

	sessions map[*session]struct{}
	connMu   sync.RWMutex
	watcher  *Watcher

	parkMu sync.Mutex
	parked map[string]*parkedWorkspace
	closed bool

	handler       http.Handler
	stopRateLimit context.CancelFunc
	rateLimitDone <-chan struct{}
}

// New creates a server. Library is required; a nil Store disables saving and a
// nil Bridge makes /api/run report that python is unavailable.
func New(opts Options) (*Server, error) {
	if opts.Library == nil {
		return nil, errors.New("server: catalog library required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	previews := opts.Previews
	if previews == nil {
		previews = cache.New(cache.Options{TTL: cfg.Editor.GetPreviewTTL()})
	}

	s := &Server{
		config:   cfg,
		library:  opts.Library,
		store:    opts.Store,
		bridge:   opts.Bridge,
		previews: previews,
		clock:    clk,
		log:      logger,
		sessions: make(map[*session]struct{}),
		parked:   make(map[string]*parkedWorkspace),
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	// Only the run endpoint is called from preview frames.
	cors := CORSMiddleware(s.config.API.GetCORSOrigins())
	api := http.NewServeMux()
	api.Handle("POST /api/run", cors(http.HandlerFunc(s.handleRun)))
	api.Handle("OPTIONS /api/run", cors(http.NotFoundHandler()))
	api.HandleFunc("POST /api/compose", s.handleCompose)
	api.HandleFunc("GET /api/templates", s.handleList(kindTemplates))
	api.HandleFunc("GET /api/templates/{name}", s.handleShow(kindTemplates))
	api.HandleFunc("GET /api/scenarios", s.handleList(kindScenarios))
	api.HandleFunc("GET /api/scenarios/{name}", s.handleShow(kindScenarios))
	api.HandleFunc("GET /api/challenges", s.handleList(kindChallenges))
	api.HandleFunc("GET /api/challenges/{name}", s.handleShow(kindChallenges))

	ctx, cancel := context.WithCancel(pslog.ContextWithLogger(context.Background(), s.log))
	rateLimit, done := RateLimitMiddleware(ctx,
		s.config.API.GetRateLimitRPS(),
		s.config.API.GetRateLimitBurst(),
		s.config.API.GetMaxTrackedIPs())
	s.stopRateLimit = cancel
	s.rateLimitDone = done

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.servePage(catalog.SurfaceEditor))
	mux.HandleFunc("GET /practice", s.servePage(catalog.SurfacePractice))
	mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServerFS(assets.StaticFS())))
	mux.HandleFunc("GET /ws", s.serveWebSocket)
	mux.HandleFunc("GET /preview/{id}", s.servePreview)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("/api/", rateLimit(api))

	var h http.Handler = mux
	h = WithCompression(h)
	h = SecurityHeadersMiddleware()(h)
	h = LoggerMiddleware(s.log)(h)
	return h
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) register(sess *session) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.sessions[sess] = struct{}{}
}

func (s *Server) unregister(sess *session) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.sessions, sess)
}

// Sessions returns the number of connected pages.
func (s *Server) Sessions() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.sessions)
}

// BroadcastCatalog tells every connected page that the catalogs changed.
func (s *Server) BroadcastCatalog() {
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	set := s.library.Current()
	msg := map[string]int{
		"templates":  set.Templates.Len(),
		"scenarios":  set.Scenarios.Len(),
		"challenges": set.Challenges.Len(),
	}
	for sess := range s.sessions {
		sess.send("catalog", msg)
	}
	s.log.Info("catalog.broadcast", "sessions", len(s.sessions))
}

// EnableWatch reloads the catalogs whenever a file in the override directory changes.
func (s *Server) EnableWatch() error {
	dir := s.library.Dir()
	if dir == "" {
		return errors.New("no catalog directory to watch")
	}
	w, err := NewWatcher(dir, s.reloadCatalog, s.log)
	if err != nil {
		return err
	}
	s.watcher = w
	w.Start()
	s.log.Info("catalog.watch.started", "dir", dir)
	return nil
}

func (s *Server) reloadCatalog(file string) error {
	if err := s.library.Reload(); err != nil {
		return err
	}
	s.log.Info("catalog.reloaded", "file", file)
	s.BroadcastCatalog()
	return nil
}

// StopWatch stops the catalog watcher.
func (s *Server) StopWatch() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.log.Warn("catalog.watch.stop_failed", "err", err)
		}
		s.watcher = nil
	}
}

// Close stops background work and disconnects every page. http.Server.Shutdown
// does not track hijacked connections, so the sockets are closed here.
func (s *Server) Close() {
	s.dropParked()

	s.connMu.RLock()
	for sess := range s.sessions {
		sess.conn.Close()
	}
	s.connMu.RUnlock()

	s.StopWatch()
	if s.stopRateLimit != nil {
		s.stopRateLimit()
		<-s.rateLimitDone
	}
	s.previews.Stop()
}
