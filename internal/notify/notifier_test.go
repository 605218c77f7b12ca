package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path     string
		category Category
		mode     Mode
	}{
		{"dist/css/site.css", Stylesheet, Swap},
		{"img/LOGO.PNG", Image, Swap},
		{"icons/a.svg", Image, Swap},
		{"dist/js/app.min.js", Script, Full},
		{"dist/js/app.min.js.map", Script, Full},
		{"index.html", Page, Full},
		{"views/partial.tpl", Page, Full},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.category, Classify(tt.path))
			assert.Equal(t, tt.mode, Classify(tt.path).Mode())
		})
	}
}

func TestClassifyBatch(t *testing.T) {
	assert.Equal(t, Stylesheet, classifyBatch([]string{"a.css", "b.css"}))
	assert.Equal(t, Stylesheet, classifyBatch([]string{"a.css", "b.png"}))
	assert.Equal(t, Image, classifyBatch([]string{"b.png"}))
	assert.Equal(t, Script, classifyBatch([]string{"a.css", "app.js"}))
	assert.Equal(t, Page, classifyBatch([]string{"app.js", "index.html"}))
	assert.Equal(t, Page, classifyBatch(nil))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNotifier_BroadcastsReload(t *testing.T) {
	n := New()
	srv := httptest.NewServer(n)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return n.Clients() == 2 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, n.NotifyReload([]string{"dist/css/site.css"}))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, Message{
			Command:  "reload",
			Category: Stylesheet,
			Mode:     Swap,
			Paths:    []string{"dist/css/site.css"},
		}, msg)
	}
}

func TestNotifier_NoClientsIsFine(t *testing.T) {
	n := New()
	assert.Equal(t, 0, n.NotifyReload([]string{"index.html"}))
	assert.Equal(t, 0, n.Clients())
}

func TestNotifier_DropsDisconnectedClients(t *testing.T) {
	n := New()
	srv := httptest.NewServer(n)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return n.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return n.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, n.NotifyReload([]string{"app.js"}))
}

func TestNotifier_Close(t *testing.T) {
	n := New()
	srv := httptest.NewServer(n)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return n.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, n.Close())
	assert.Equal(t, 0, n.Clients())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
