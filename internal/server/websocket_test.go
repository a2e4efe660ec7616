package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	playground "github.com/devlearn/playground"
)

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	resp *http.Response
}

func dial(t *testing.T, ts *httptest.Server, query string, header http.Header) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if query != "" {
		url += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, resp: resp}
}

func (c *testClient) send(action string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(Envelope{Action: action, Data: raw}))
}

// next reads messages until one with the given action arrives.
func (c *testClient) next(action string) json.RawMessage {
	c.t.Helper()
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var env Envelope
		require.NoError(c.t, c.conn.ReadJSON(&env), "waiting for %q", action)
		if env.Action == action {
			return env.Data
		}
	}
}

func (c *testClient) preview() previewData {
	c.t.Helper()
	var p previewData
	require.NoError(c.t, json.Unmarshal(c.next("preview"), &p))
	return p
}

func (c *testClient) notice() playground.Result {
	c.t.Helper()
	var r playground.Result
	require.NoError(c.t, json.Unmarshal(c.next("notify"), &r))
	return r
}

func (c *testClient) editorValue() string {
	c.t.Helper()
	var v struct {
		Value string `json:"value"`
	}
	require.NoError(c.t, json.Unmarshal(c.next("editor"), &v))
	return v.Value
}

func (c *testClient) editor() editorData {
	c.t.Helper()
	var v editorData
	require.NoError(c.t, json.Unmarshal(c.next("editor"), &v))
	return v
}

func (c *testClient) snapshot() playground.Buffers {
	c.t.Helper()
	c.send("snapshot", nil)
	var b playground.Buffers
	require.NoError(c.t, json.Unmarshal(c.next("snapshot"), &b))
	return b
}

func deviceHeader(id string) http.Header {
	h := http.Header{}
	h.Set("Cookie", (&http.Cookie{Name: DeviceCookie, Value: id}).String())
	return h
}

func TestWebSocketEditorSession(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := dial(t, ts, "surface=editor", nil)

	var device *http.Cookie
	for _, ck := range c.resp.Cookies() {
		if ck.Name == DeviceCookie {
			device = ck
		}
	}
	require.NotNil(t, device, "upgrade response sets the device cookie")

	assert.Contains(t, c.editorValue(), "Welcome to DevLearn Editor!")
	first := c.preview()
	assert.Equal(t, playground.MarkupDocument, first.Kind)
	assert.Contains(t, first.Document, "Welcome to DevLearn Editor!")
	require.True(t, strings.HasPrefix(first.URL, "/preview/"))

	c.send("edit", editData{Text: "<h1>Hi</h1>"})
	c.send("run", nil)
	p := c.preview()
	assert.Contains(t, p.Document, "<h1>Hi</h1>")

	// The snapshot stays reachable for "open in new window".
	resp, err := http.Get(ts.URL + p.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sandbox allow-scripts allow-modals", resp.Header.Get("Content-Security-Policy"))

	c.send("switchTab", tabData{Tab: "python"})
	ed := c.editor()
	assert.Contains(t, ed.Value, `print("Hello, World!")`)
	assert.Equal(t, "python", ed.Tab)
	var mode playground.SyntaxMode
	require.NoError(t, json.Unmarshal(c.next("mode"), &mode))
	assert.Equal(t, "python", mode.Editor)
	var tab tabData
	require.NoError(t, json.Unmarshal(c.next("tab"), &tab))
	assert.Equal(t, "python", tab.Tab)

	c.send("run", nil)
	assert.Equal(t, playground.InterpreterDocument, c.preview().Kind)

	c.send("switchTab", tabData{Tab: "html"})
	assert.Equal(t, "<h1>Hi</h1>", c.editorValue())
}

func TestWebSocketSaveClearLoad(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := dial(t, ts, "", nil)
	c.preview()

	c.send("load", nil)
	n := c.notice()
	assert.False(t, n.OK)
	assert.Equal(t, "No saved code found", n.Message)

	c.send("edit", editData{Text: "<p>saved</p>"})
	c.send("save", nil)
	n = c.notice()
	assert.True(t, n.OK)
	assert.Equal(t, "Code saved successfully!", n.Message)

	c.send("clear", nil)
	assert.Equal(t, "", c.editorValue())
	assert.Equal(t, "Code cleared!", c.notice().Message)

	c.send("snapshot", nil)
	var snap playground.Buffers
	require.NoError(t, json.Unmarshal(c.next("snapshot"), &snap))
	assert.Equal(t, playground.Buffers{}, snap)

	c.send("load", nil)
	assert.Equal(t, "<p>saved</p>", c.editorValue())
	assert.Equal(t, "Code loaded successfully!", c.notice().Message)
}

func TestWebSocketDeviceScopesSaves(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	cookie := deviceHeader
	alice, bob := randomID(), randomID()

	a := dial(t, ts, "", cookie(alice))
	a.preview()
	a.send("save", nil)
	assert.True(t, a.notice().OK)

	b := dial(t, ts, "", cookie(bob))
	b.preview()
	b.send("load", nil)
	assert.Equal(t, "No saved code found", b.notice().Message)

	again := dial(t, ts, "", cookie(alice))
	again.preview()
	again.send("load", nil)
	assert.Equal(t, "Code loaded successfully!", again.notice().Message)

	p := dial(t, ts, "surface=practice", cookie(alice))
	p.preview()
	p.send("load", nil)
	assert.Equal(t, "No saved code found", p.notice().Message, "practice and editor do not share saves")
}

func TestWebSocketCatalogCommands(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := dial(t, ts, "", nil)
	c.preview()

	c.send("template", nameData{Name: "landing-page"})
	assert.Contains(t, c.preview().Document, "Welcome to the Future")
	n := c.notice()
	assert.True(t, n.OK)
	assert.Equal(t, `Template "landing-page" loaded!`, n.Message)

	c.send("template", nameData{Name: "nope"})
	n = c.notice()
	assert.False(t, n.OK)
	assert.Equal(t, playground.LevelError, n.Level)

	c.send("scenario", nameData{Name: "python-analyzer"})
	assert.Equal(t, `Challenge "python-analyzer" loaded!`, c.notice().Message)

	c.send("switchTab", tabData{Tab: "ruby"})
	assert.Equal(t, playground.LevelError, c.notice().Level)

	c.send("dance", nil)
	assert.Contains(t, c.notice().Message, "Unknown action")

	c.send("template", json.RawMessage(`"not an object"`))
	assert.Contains(t, c.notice().Message, "Malformed")
}

func TestWebSocketStartupSelection(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"template", "template=product-card", "product-card"},
		{"practice challenge", "surface=practice&practice=calculator", "calculator"},
		{"unknown falls back", "template=nope", "Welcome to DevLearn Editor!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, ts, tt.query, nil)
			assert.Contains(t, c.preview().Document, tt.want)
		})
	}
}

func TestWebSocketSessionsTracked(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := dial(t, ts, "", nil)
	c.preview()
	assert.Equal(t, 1, srv.Sessions())

	srv.BroadcastCatalog()
	var counts map[string]int
	require.NoError(t, json.Unmarshal(c.next("catalog"), &counts))
	assert.Positive(t, counts["templates"])

	c.conn.Close()
	assert.Eventually(t, func() bool { return srv.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketEditForPreviousTab(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := dial(t, ts, "", nil)
	c.preview()
	python := c.snapshot().Python
	require.NotEmpty(t, python)

	// The page typed into the html tab before it saw the switch land.
	c.send("switchTab", tabData{Tab: "python"})
	c.send("edit", editData{Text: "<h1>typed in html</h1>", Tab: "html"})
	c.send("switchTab", tabData{Tab: "html"})
	for {
		if ed := c.editor(); ed.Tab == "html" {
			assert.Equal(t, "<h1>typed in html</h1>", ed.Value)
			break
		}
	}

	snap := c.snapshot()
	assert.Equal(t, python, snap.Python, "python buffer untouched")
	assert.Equal(t, "<h1>typed in html</h1>", snap.HTML)

	c.send("edit", editData{Text: "x", Tab: "cobol"})
	assert.Equal(t, playground.LevelError, c.notice().Level)
}

func TestWebSocketReconnectResumesWorkspace(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	device, client := randomID(), randomID()
	query := "client=" + client
	c := dial(t, ts, query, deviceHeader(device))
	c.preview()
	c.send("switchTab", tabData{Tab: "css"})
	c.send("edit", editData{Text: "h1 { color: red; }", Tab: "css"})
	c.send("snapshot", nil)
	c.next("snapshot")

	c.conn.Close()
	require.Eventually(t, func() bool { return srv.Sessions() == 0 && srv.Parked() == 1 },
		2*time.Second, 10*time.Millisecond)

	again := dial(t, ts, query, deviceHeader(device))
	ed := again.editor()
	assert.Equal(t, "h1 { color: red; }", ed.Value)
	assert.Equal(t, "css", ed.Tab)
	assert.Contains(t, again.preview().Document, "h1 { color: red; }")
	assert.Equal(t, 0, srv.Parked())

	other := dial(t, ts, "client="+randomID(), deviceHeader(device))
	assert.Contains(t, other.editorValue(), "Welcome to DevLearn Editor!", "another page starts fresh")

	stranger := dial(t, ts, query, deviceHeader(randomID()))
	assert.Contains(t, stranger.editorValue(), "Welcome to DevLearn Editor!", "client id is scoped to the device")
}

func TestWebSocketParkedWorkspaceExpires(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()
	clk := srv.clock.(*clocktesting.FakeClock)

	device, client := randomID(), randomID()
	query := "client=" + client
	c := dial(t, ts, query, deviceHeader(device))
	c.preview()
	c.send("edit", editData{Text: "<h1>unsaved work</h1>", Tab: "html"})
	c.send("snapshot", nil)
	c.next("snapshot")

	c.conn.Close()
	require.Eventually(t, func() bool { return srv.Parked() == 1 }, 2*time.Second, 10*time.Millisecond)

	clk.Step(srv.config.Editor.GetSessionTTL())
	assert.Equal(t, 0, srv.Parked())

	again := dial(t, ts, query, deviceHeader(device))
	assert.Contains(t, again.editorValue(), "Welcome to DevLearn Editor!")
}

func TestCloseDisconnectsPages(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := dial(t, ts, "client="+randomID(), nil)
	c.preview()

	srv.Close()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) {
				assert.False(t, netErr.Timeout(), "socket left open")
			}
			break
		}
	}
	assert.Eventually(t, func() bool { return srv.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, srv.Parked(), "closed server keeps nothing parked")
}
