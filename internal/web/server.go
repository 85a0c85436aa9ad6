package web

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/label-scanner/internal/ingredients"
	"github.com/zombor/label-scanner/internal/session"
	"github.com/zombor/label-scanner/internal/speech"
)

// Scanner is the running scan loop as seen by HTTP handlers
type Scanner interface {
	Trigger(ctx context.Context) (bool, error)
	Session() session.Session
	Frame() *image.RGBA
}

// FrameSink receives webcam frames uploaded by the browser. A nil sink
// disables uploads.
type FrameSink interface {
	Update(frame image.Image)
}

// Utterances lists spoken summaries for the browser to read aloud
type Utterances interface {
	Since(seq uint64) []speech.Utterance
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Server handles HTTP requests for the scanner UI
type Server struct {
	scanner    Scanner
	frames     FrameSink
	utterances Utterances
	dict       *ingredients.Dictionary
	basicAuth  BasicAuth
	mux        *http.ServeMux
	timeSource session.TimeSource
	httpServer *http.Server
}

// NewServer creates a new Server with default mux
func NewServer(scanner Scanner, frames FrameSink, utterances Utterances, dict *ingredients.Dictionary, basicAuth BasicAuth) *Server {
	return NewServerWithMux(scanner, frames, utterances, dict, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(scanner Scanner, frames FrameSink, utterances Utterances, dict *ingredients.Dictionary, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		scanner:    scanner,
		frames:     frames,
		utterances: utterances,
		dict:       dict,
		basicAuth:  basicAuth,
		mux:        mux,
		timeSource: session.SystemTime(),
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(credentials[0]), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(credentials[1]), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Label Scanner"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.requireAuth(s.handleStaticCSS))
	s.mux.HandleFunc("GET /static/app.js", s.requireAuth(s.handleStaticJS))

	s.mux.HandleFunc("POST /api/frames", s.requireAuth(s.handleUploadFrame))
	s.mux.HandleFunc("GET /api/frame.png", s.requireAuth(s.handleFrame))
	s.mux.HandleFunc("POST /api/scan", s.requireAuth(s.handleScan))
	s.mux.HandleFunc("GET /api/session", s.requireAuth(s.handleSession))
	s.mux.HandleFunc("GET /api/utterances", s.requireAuth(s.handleUtterances))
	s.mux.HandleFunc("GET /api/ingredients", s.requireAuth(s.handleIngredients))

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Start serves on addr until Shutdown is called. It returns nil after a
// Shutdown, even one that happened before Start.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	slog.Info("Starting server", "address", listener.Addr().String())
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
