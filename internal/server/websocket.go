package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"

	playground "github.com/devlearn/playground"
	"github.com/devlearn/playground/internal/cache"
	"github.com/devlearn/playground/internal/catalog"
	"github.com/devlearn/playground/internal/storage"
)

const (
	maxMessageSize = 1 << 20
	writeWait      = 10 * time.Second
	commandTimeout = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Envelope is one message in either direction.
type Envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// editData is typed text and the tab the page showed while it was typed.
type editData struct {
	Text string `json:"text"`
	Tab  string `json:"tab,omitempty"`
}

type editorData struct {
	Value string `json:"value"`
	Tab   string `json:"tab"`
}

type tabData struct {
	Tab string `json:"tab"`
}

type nameData struct {
	Name string `json:"name"`
}

type previewData struct {
	Document string                  `json:"document"`
	Kind     playground.DocumentKind `json:"kind"`
	URL      string                  `json:"url"`
}

// session is one connected editor or practice page.
type session struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	log     pslog.Logger

	workspace *playground.Workspace
	previews  *cache.PreviewCache
}

// remoteSurface mirrors the browser editor. Values pushed by the workspace are
// forwarded to the attached page; values typed in the page are only recorded.
// A parked workspace keeps its surface with no page attached.
type remoteSurface struct {
	*playground.MemorySurface

	mu   sync.Mutex
	sess *session
	tab  playground.Language
}

func newRemoteSurface() *remoteSurface {
	return &remoteSurface{MemorySurface: playground.NewMemorySurface(), tab: playground.HTML}
}

func (r *remoteSurface) attach(sess *session) {
	r.mu.Lock()
	r.sess = sess
	r.mu.Unlock()
}

func (r *remoteSurface) current() (*session, playground.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess, r.tab
}

func (r *remoteSurface) SetTab(lang playground.Language) {
	r.mu.Lock()
	r.tab = lang
	r.mu.Unlock()
}

// SetValue tells the page which tab the text belongs to, so edits typed before
// the page caught up with a switch are attributed to the right buffer.
func (r *remoteSurface) SetValue(text string) {
	r.MemorySurface.SetValue(text)
	if sess, tab := r.current(); sess != nil {
		sess.send("editor", editorData{Value: text, Tab: string(tab)})
	}
}

func (r *remoteSurface) SetMode(mode playground.SyntaxMode) {
	r.MemorySurface.SetMode(mode)
	if sess, _ := r.current(); sess != nil {
		sess.send("mode", mode)
	}
}

func (r *remoteSurface) publish(doc string, kind playground.DocumentKind) {
	if sess, _ := r.current(); sess != nil {
		sess.publish(doc, kind)
	}
}

func (s *session) send(action string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("ws.marshal.failed", "action", action, "err", err)
		return
	}
	msg, err := json.Marshal(Envelope{Action: action, Data: data})
	if err != nil {
		s.log.Error("ws.marshal.failed", "action", action, "err", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		s.log.Debug("ws.send.failed", "action", action, "err", err)
	}
}

func (s *session) notify(res playground.Result) {
	if res.Message == "" {
		return
	}
	s.send("notify", res)
}

// previewURL is where the latest document of this session can be opened in a new window.
func (s *session) previewURL() string {
	return "/preview/" + s.id
}

func (s *session) publish(doc string, kind playground.DocumentKind) {
	if s.previews != nil {
		s.previews.Put(s.id, cache.Snapshot{Document: doc, Kind: string(kind), CreatedAt: time.Now()})
	}
	s.send("preview", previewData{Document: doc, Kind: kind, URL: s.previewURL()})
}

// handle dispatches one client command.
func (s *session) handle(ctx context.Context, env Envelope) {
	w := s.workspace
	switch env.Action {
	case "edit":
		var d editData
		if !s.decode(env, &d) {
			return
		}
		if d.Tab == "" {
			w.Edit(d.Text)
			return
		}
		lang, err := playground.ParseLanguage(d.Tab)
		if err != nil {
			s.notify(playground.Result{Level: playground.LevelError, Message: "Unknown tab " + d.Tab})
			return
		}
		if lang != w.Active() {
			s.log.Debug("ws.edit.stale", "tab", lang, "active", w.Active())
		}
		s.notify(w.EditIn(lang, d.Text))
	case "switchTab":
		var d tabData
		if !s.decode(env, &d) {
			return
		}
		lang, err := playground.ParseLanguage(d.Tab)
		if err != nil {
			s.notify(playground.Result{Level: playground.LevelError, Message: "Unknown tab " + d.Tab})
			return
		}
		res := w.SwitchTab(lang)
		if res.OK {
			s.send("tab", tabData{Tab: string(w.Active())})
		}
		s.notify(res)
	case "run":
		s.notify(w.RunNow())
	case "save":
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		s.notify(w.Save(ctx))
	case "load":
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		s.notify(w.LoadSaved(ctx))
	case "clear":
		s.notify(w.Clear())
	case "template":
		var d nameData
		if !s.decode(env, &d) {
			return
		}
		s.notify(w.LoadTemplate(d.Name))
	case "scenario":
		var d nameData
		if !s.decode(env, &d) {
			return
		}
		s.notify(w.LoadScenario(d.Name))
	case "snapshot":
		s.send("snapshot", w.Snapshot())
	default:
		s.log.Warn("ws.action.unknown", "action", env.Action)
		s.notify(playground.Result{Level: playground.LevelError, Message: "Unknown action " + env.Action})
	}
}

func (s *session) decode(env Envelope, v any) bool {
	if len(env.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		s.log.Warn("ws.data.invalid", "action", env.Action, "err", err)
		s.notify(playground.Result{Level: playground.LevelError, Message: "Malformed " + env.Action + " request"})
		return false
	}
	return true
}

// serveWebSocket upgrades the connection and runs one workspace until the page
// goes away. A page that passes ?client= gets its workspace back when it
// reconnects within the session TTL.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	log := pslog.Ctx(r.Context())

	device, fresh := deviceID(r)
	header := http.Header{}
	if fresh {
		header.Add("Set-Cookie", deviceCookie(device).String())
	}

	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		log.Warn("ws.upgrade.failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	q := r.URL.Query()
	surface := catalog.SurfaceEditor
	key := storage.EditorKey
	if q.Get("surface") == catalog.SurfacePractice {
		surface = catalog.SurfacePractice
		key = storage.PracticeKey
	}

	sess := &session{
		id:       randomID(),
		conn:     conn,
		log:      log.With("surface", surface),
		previews: s.previews,
	}

	var pk string
	if client := q.Get("client"); validDeviceID(client) {
		pk = parkKey(surface, device, client)
	}

	remote, ws, resumed := s.resume(pk)
	if !resumed {
		remote = newRemoteSurface()
		var persister playground.Persister
		if s.store != nil {
			persister = storage.NewAdapter(s.store, storage.DeviceKey(key, device))
		}
		ws = playground.NewWorkspace(playground.Options{
			Surface:   remote,
			Persister: persister,
			Templates: s.library.Templates(),
			Scenarios: s.library.Practice(surface),
			Defaults:  s.library.Current().Default(surface),
			Sink:      remote.publish,
			Compose:   playground.DefaultComposeOptions(),
			Clock:     s.clock,
			Debounce:  s.config.Editor.GetDebounce(),
			Logger:    sess.log,
		})
	}
	sess.workspace = ws
	remote.attach(sess)

	s.register(sess)
	defer func() {
		s.unregister(sess)
		remote.attach(nil)
		if pk != "" {
			s.park(pk, remote, ws)
		} else {
			ws.Close()
		}
		if s.previews != nil {
			s.previews.Invalidate(sess.id)
		}
		conn.Close()
	}()

	sess.log.Debug("ws.connected", "remote", conn.RemoteAddr().String(), "resumed", resumed)

	sess.send("mode", playground.ModeFor(ws.Active()))
	sess.send("tab", tabData{Tab: string(ws.Active())})
	if resumed {
		ws.Resume()
	} else {
		sess.notify(ws.Start(playground.StartParams{
			Template: q.Get("template"),
			Practice: q.Get("practice"),
		}))
	}

	ctx := pslog.ContextWithLogger(r.Context(), sess.log)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.log.Warn("ws.closed.unexpected", "err", err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			sess.log.Warn("ws.message.invalid", "err", err)
			continue
		}
		sess.handle(ctx, env)
	}

	sess.log.Debug("ws.disconnected")
}
