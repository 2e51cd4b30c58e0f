// Package server implements the External Server Manager (spec §4.8):
// optional in-process HTTP servers a workflow can request on demand — a
// file share and a screen share — each keyed by TCP port so at most one
// server binds any given port at a time.
//
// Grounded on the teacher's pkg/server.Server (http.Server construction,
// middleware chaining, graceful Shutdown via context) generalized from
// the teacher's single fixed workflow-execution API surface to a
// registry of independently start/stoppable servers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rpacore/engine/pkg/rlog"
)

// FileShareConfig configures a file-share server (spec §4.8's "serves a
// root directory ... with optional write endpoints").
type FileShareConfig struct {
	Root        string
	AllowWrite  bool
	ReadTimeout time.Duration
}

// ScreenFrameSource supplies one encoded frame on demand; the capture
// mechanism is platform-specific and lives outside this package — the
// manager only owns scheduling, encoding cadence, and HTTP delivery.
type ScreenFrameSource interface {
	CaptureJPEG(quality int, scale float64) ([]byte, error)
}

// ScreenShareConfig configures a screen-share server (spec §4.8's
// "periodic screen capture encoded as JPEG frames").
type ScreenShareConfig struct {
	Source    ScreenFrameSource
	FrameRate float64 // frames per second
	Quality   int     // JPEG quality, 1-100
	Scale     float64 // 0 < scale <= 1
}

// running is one server bound to a port, regardless of kind.
type running struct {
	httpServer *http.Server
	cancel     context.CancelFunc
}

// Manager supervises every live file-share/screen-share server, keyed by
// port. At most one server may occupy a port at a time (spec §4.8).
type Manager struct {
	mu      sync.Mutex
	servers map[int]*running
	logger  *rlog.Logger
}

// NewManager creates an empty Manager. logger may be nil.
func NewManager(logger *rlog.Logger) *Manager {
	if logger == nil {
		logger = rlog.New(rlog.DefaultConfig())
	}
	return &Manager{servers: make(map[int]*running), logger: logger}
}

// ErrPortInUse is returned by Start when the port already has a server.
type ErrPortInUse struct{ Port int }

func (e *ErrPortInUse) Error() string {
	return fmt.Sprintf("server: port %d already has a server running", e.Port)
}

// StartFileShare binds a file-share server to port.
func (m *Manager) StartFileShare(port int, cfg FileShareConfig) error {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return fmt.Errorf("server: resolving file share root: %w", err)
	}
	return m.start(port, fileShareHandler(root, cfg.AllowWrite), cfg.ReadTimeout)
}

// StartScreenShare binds a screen-share server to port.
func (m *Manager) StartScreenShare(port int, cfg ScreenShareConfig) error {
	if cfg.Source == nil {
		return fmt.Errorf("server: screen share requires a frame source")
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 5
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 70
	}
	if cfg.Scale <= 0 || cfg.Scale > 1 {
		cfg.Scale = 1
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", screenShareHandler(cfg))
	return m.start(port, mux, 0)
}

func (m *Manager) start(port int, handler http.Handler, readTimeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.servers[port]; exists {
		return &ErrPortInUse{Port: port}
	}

	srv := &http.Server{
		Addr:        ":" + strconv.Itoa(port),
		Handler:     recoveryMiddleware(m.logger, handler),
		ReadTimeout: readTimeout,
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.servers[port] = &running{httpServer: srv, cancel: cancel}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		<-ctx.Done()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			m.mu.Lock()
			delete(m.servers, port)
			m.mu.Unlock()
			cancel()
			return fmt.Errorf("server: starting on port %d: %w", port, err)
		}
	case <-time.After(50 * time.Millisecond):
		// Still listening after the settle window; treat as a
		// successful bind and let ListenAndServe keep running.
	}
	m.logger.WithField("port", port).Info("external server started")
	return nil
}

// Stop shuts down the server bound to port, if any.
func (m *Manager) Stop(port int) error {
	m.mu.Lock()
	r, ok := m.servers[port]
	delete(m.servers, port)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	r.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: stopping port %d: %w", port, err)
	}
	m.logger.WithField("port", port).Info("external server stopped")
	return nil
}

// StopAll shuts down every live server, used on process exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ports := make([]int, 0, len(m.servers))
	for p := range m.servers {
		ports = append(ports, p)
	}
	m.mu.Unlock()
	for _, p := range ports {
		_ = m.Stop(p)
	}
}

// ActivePorts lists every port currently bound.
func (m *Manager) ActivePorts() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ports := make([]int, 0, len(m.servers))
	for p := range m.servers {
		ports = append(ports, p)
	}
	return ports
}

// fileShareHandler serves root over HTTP, enforcing the path-containment
// safety rule: a request path that resolves outside root is rejected
// with 403 regardless of how it was encoded (spec §4.8).
func fileShareHandler(root string, allowWrite bool) http.HandlerFunc {
	fs := http.FileServer(http.Dir(root))
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := resolveWithinRoot(root, r.URL.Path)
		if err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead:
			fs.ServeHTTP(w, r)
		case http.MethodPut:
			if !allowWrite {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			writeUploadedFile(w, r, target)
		case http.MethodDelete:
			if !allowWrite {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			if err := os.Remove(target); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// resolveWithinRoot joins root and requestPath and rejects the result if
// it escapes root — the only safety rule spec §4.8 names.
func resolveWithinRoot(root, requestPath string) (string, error) {
	cleaned := filepath.Clean("/" + requestPath)
	joined := filepath.Join(root, cleaned)
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", fmt.Errorf("server: path %q escapes shared root", requestPath)
	}
	return joined, nil
}

func writeUploadedFile(w http.ResponseWriter, r *http.Request, target string) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	f, err := os.Create(target)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	if _, err := f.ReadFrom(r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// screenShareHandler streams multipart JPEG frames at cfg.FrameRate
// until the client disconnects.
func screenShareHandler(cfg ScreenShareConfig) http.HandlerFunc {
	const boundary = "rpacore-frame"
	interval := time.Duration(float64(time.Second) / cfg.FrameRate)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				frame, err := cfg.Source.CaptureJPEG(cfg.Quality, cfg.Scale)
				if err != nil {
					return
				}
				fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(frame))
				w.Write(frame)
				fmt.Fprint(w, "\r\n")
				flusher.Flush()
			}
		}
	}
}

// marshalError is a small helper used by handlers that need to report a
// structured JSON error rather than plain text (kept minimal; the file
// share and screen share handlers above use plain-text errors per the
// lightweight nature of spec §4.8's servers).
func marshalError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func recoveryMiddleware(logger *rlog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithField("panic", fmt.Sprintf("%v", rec)).WithField("path", r.URL.Path).Error("panic recovered")
				marshalError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
