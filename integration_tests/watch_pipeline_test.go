package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/assetpipe/internal/config"
	"github.com/maxkimambo/assetpipe/internal/fileset"
	"github.com/maxkimambo/assetpipe/internal/notify"
	"github.com/maxkimambo/assetpipe/internal/orchestrator"
	"github.com/maxkimambo/assetpipe/internal/runner"
	"github.com/maxkimambo/assetpipe/internal/server"
	"github.com/maxkimambo/assetpipe/internal/transform"
	"github.com/maxkimambo/assetpipe/internal/watcher"
)

const pipelineConfig = `
output = "dist"

watch {
  debounce = "50ms"
  reload   = ["templates/**/*.html"]
}

task "styles" {
  transform = "copy"
  inputs {
    include = ["app/**/*.css"]
  }
  output  = "dist"
  options = { strip = "app" }
}

task "scripts" {
  transform = "concat"
  inputs {
    include = ["app/js/*.js"]
  }
  output = "dist/app.js"
}

task "pages" {
  transform  = "copy"
  inputs {
    include = ["app/*.html"]
  }
  output     = "dist"
  depends_on = ["styles", "scripts"]
  options    = { strip = "app" }
}
`

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func readMessage(t *testing.T, conn *websocket.Conn) notify.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg notify.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// TestWatchPipeline drives a change through watcher, orchestrator, runner
// and notifier to a connected WebSocket client.
func TestWatchPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	root := t.TempDir()
	writeFile(t, root, "app/index.html", "<html><body>home</body></html>")
	writeFile(t, root, "app/site.css", "body { color: red }")
	writeFile(t, root, "app/js/a.js", "var a = 1")

	cfg, err := config.Parse([]byte(pipelineConfig), filepath.Join(root, config.DefaultFile))
	require.NoError(t, err)
	graph, err := cfg.Graph(transform.DefaultRegistry())
	require.NoError(t, err)
	resolver, err := fileset.NewResolver(cfg.Root)
	require.NoError(t, err)

	r := runner.New(graph, resolver, nil)
	initial, err := r.RunAll(context.Background())
	require.NoError(t, err)
	require.False(t, initial.Failed())
	assert.FileExists(t, filepath.Join(root, "dist", "index.html"))

	notifier := notify.New()
	srv := server.New(cfg.Server, notifier)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() {
		notifier.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+server.SocketPath, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return notifier.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	counter := &atomic.Int32{}
	orch := orchestrator.New(graph, countingBuilder{Runner: r, n: counter}, notifier, cfg.Root)
	orch.Reload = cfg.Watch.Reload
	w := watcher.New(cfg.Root, cfg.FileSets(), cfg.Watch.Debounce)
	require.NoError(t, w.Start(ctx, orch.HandleEvents))
	defer w.Stop()
	go orch.Run(ctx)

	// A stylesheet change rebuilds styles and its dependent page, then swaps
	writeFile(t, root, "app/site.css", "body { color: blue }")

	msg := readMessage(t, conn)
	assert.Equal(t, "reload", msg.Command)
	assert.Equal(t, notify.Stylesheet, msg.Category)
	assert.Equal(t, notify.Swap, msg.Mode)
	assert.Contains(t, msg.Paths, "app/site.css")

	css, err := os.ReadFile(filepath.Join(root, "dist", "site.css"))
	require.NoError(t, err)
	assert.Equal(t, "body { color: blue }", string(css))
	assert.True(t, r.Satisfied("pages"))

	// A script change reloads the page
	writeFile(t, root, "app/js/a.js", "var a = 2")

	msg = readMessage(t, conn)
	assert.Equal(t, notify.Script, msg.Category)
	assert.Equal(t, notify.Full, msg.Mode)

	bundle, err := os.ReadFile(filepath.Join(root, "dist", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "var a = 2", string(bundle))

	// A file no task reads reloads browsers without a rebuild
	builds := counter.Load()
	writeFile(t, root, "templates/partials/nav.html", "<nav></nav>")

	msg = readMessage(t, conn)
	assert.Equal(t, notify.Page, msg.Category)
	assert.Equal(t, notify.Full, msg.Mode)
	assert.Equal(t, []string{"templates/partials/nav.html"}, msg.Paths)
	assert.Equal(t, builds, counter.Load())
}

// countingBuilder counts incremental builds passed to the runner
type countingBuilder struct {
	*runner.Runner
	n *atomic.Int32
}

func (b countingBuilder) RunSubset(ctx context.Context, names []string) (*runner.Report, error) {
	b.n.Add(1)
	return b.Runner.RunSubset(ctx, names)
}
