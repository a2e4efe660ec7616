package server

import (
	"k8s.io/utils/clock"

	playground "github.com/devlearn/playground"
)

// parkedWorkspace is the workspace of a page whose socket dropped. It waits
// for the page to reconnect until its timer fires.
type parkedWorkspace struct {
	remote    *remoteSurface
	workspace *playground.Workspace
	timer     clock.Timer
}

func parkKey(surface, device, client string) string {
	return surface + "/" + device + "/" + client
}

// park keeps a workspace for the session TTL. A workspace already parked under
// the same key is replaced and closed.
func (s *Server) park(key string, remote *remoteSurface, ws *playground.Workspace) {
	ws.Close()

	p := &parkedWorkspace{remote: remote, workspace: ws}
	s.parkMu.Lock()
	if s.closed {
		s.parkMu.Unlock()
		return
	}
	old := s.parked[key]
	s.parked[key] = p
	s.parkMu.Unlock()

	if old != nil {
		s.stopParked(old)
	}

	// The timer is created without parkMu held: a fake clock runs the callback
	// under its own lock, and expire takes parkMu.
	ttl := s.config.Editor.GetSessionTTL()
	t := s.clock.AfterFunc(ttl, func() { s.expire(key, p) })

	s.parkMu.Lock()
	stillParked := s.parked[key] == p
	if stillParked {
		p.timer = t
	}
	s.parkMu.Unlock()
	if !stillParked {
		t.Stop()
	}
	s.log.Debug("ws.parked", "ttl", ttl)
}

// resume takes the workspace parked under key, if any.
func (s *Server) resume(key string) (*remoteSurface, *playground.Workspace, bool) {
	if key == "" {
		return nil, nil, false
	}
	s.parkMu.Lock()
	p, ok := s.parked[key]
	if ok {
		delete(s.parked, key)
	}
	s.parkMu.Unlock()
	if !ok {
		return nil, nil, false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	return p.remote, p.workspace, true
}

// expire runs on the clock's timer. The workspace was closed when it was parked,
// so dropping it is enough.
func (s *Server) expire(key string, p *parkedWorkspace) {
	s.parkMu.Lock()
	defer s.parkMu.Unlock()
	if s.parked[key] == p {
		delete(s.parked, key)
	}
}

func (s *Server) stopParked(p *parkedWorkspace) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.workspace.Close()
}

// Parked returns the number of workspaces waiting for their page to reconnect.
func (s *Server) Parked() int {
	s.parkMu.Lock()
	defer s.parkMu.Unlock()
	return len(s.parked)
}

// dropParked discards every parked workspace and refuses new ones.
func (s *Server) dropParked() {
	s.parkMu.Lock()
	parked := s.parked
	s.parked = make(map[string]*parkedWorkspace)
	s.closed = true
	s.parkMu.Unlock()

	for _, p := range parked {
		s.stopParked(p)
	}
}
