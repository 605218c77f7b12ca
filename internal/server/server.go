// Package server is the development HTTP server with live reload support.
package server

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/pkg/browser"

	"github.com/maxkimambo/assetpipe/internal/config"
	"github.com/maxkimambo/assetpipe/internal/logger"
)

const (
	// ScriptPath serves the browser side of live reload
	ScriptPath = "/__livereload.js"
	// SocketPath is where the notifier accepts WebSocket connections
	SocketPath = "/__livereload"
)

// Snippet is inserted into every HTML page served
const Snippet = `<script src="` + ScriptPath + `"></script>`

//go:embed livereload.js
var clientScript []byte

// Server serves the site directory and hosts the live reload endpoint
type Server struct {
	base       string
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
}

// New creates a server for cfg.Base. notifier handles WebSocket upgrades.
func New(cfg config.ServerConfig, notifier http.Handler) *Server {
	s := &Server{base: cfg.Base}

	mux := http.NewServeMux()
	mux.Handle(SocketPath, notifier)
	mux.HandleFunc(ScriptPath, serveScript)
	mux.Handle("/", &siteHandler{root: http.Dir(cfg.Base), files: http.FileServer(http.Dir(cfg.Base))})
	s.handler = mux

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, useful for tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr and serves in the background. Listen errors are
// returned immediately.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && logger.Op != nil {
			logger.Op.Errorf("Dev server stopped: %v", err)
		}
	}()

	if logger.User != nil {
		logger.User.Infof("Serving %s at http://%s", s.base, ln.Addr())
	}
	return nil
}

// Addr returns the listening address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the address of page on the running server, or "" before Start
func (s *Server) URL(page string) string {
	if s.listener == nil {
		return ""
	}
	port := 0
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	return fmt.Sprintf("http://localhost:%d/%s", port, strings.TrimPrefix(page, "/"))
}

// openURL launches the system browser
var openURL = browser.OpenURL

// Open launches the default browser at page on the running server
func (s *Server) Open(page string) error {
	url := s.URL(page)
	if url == "" {
		return errors.New("server is not running")
	}
	if err := openURL(url); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	if logger.Op != nil {
		logger.Op.Debugf("Opened browser at %s", url)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func serveScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(clientScript)
}

// siteHandler serves static files and injects the live reload snippet into
// HTML pages
type siteHandler struct {
	root  http.FileSystem
	files http.Handler
}

func (h *siteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.files.ServeHTTP(w, r)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, "index.html")
	}
	if !isHTML(name) {
		h.files.ServeHTTP(w, r)
		return
	}

	f, err := h.root.Open(name)
	if err != nil {
		h.files.ServeHTTP(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}
	page, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "failed to read page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(Inject(page)))
}

func isHTML(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".html" || ext == ".htm"
}

var closingBody = []byte("</body>")

// lastIndexFold is a case-insensitive bytes.LastIndex. It scans the original
// bytes so the offset stays valid when folding would change their length.
func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}

// Inject inserts the live reload snippet before the last closing body tag,
// or appends it when the page has none
func Inject(page []byte) []byte {
	idx := lastIndexFold(page, closingBody)
	if idx < 0 {
		return append(append([]byte{}, page...), []byte(Snippet)...)
	}

	out := make([]byte, 0, len(page)+len(Snippet))
	out = append(out, page[:idx]...)
	out = append(out, Snippet...)
	out = append(out, page[idx:]...)
	return out
}
