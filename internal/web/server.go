package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kpapadakis/ledgerdesk/internal/config"
	"github.com/kpapadakis/ledgerdesk/internal/router"
	"github.com/kpapadakis/ledgerdesk/internal/store"
)

type Server struct {
	store     *store.Store
	router    *router.Router
	hub       *Hub
	cfg       config.WebConfig
	version   string
	startedAt time.Time

	listener net.Listener
}

func NewServer(s *store.Store, rtr *router.Router, cfg config.WebConfig, version string) *Server {
	return &Server{
		store:     s,
		router:    rtr,
		hub:       NewHub(),
		cfg:       cfg,
		version:   version,
		startedAt: time.Now(),
	}
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	mux := http.NewServeMux()
	s.registerAPI(mux)
	mux.HandleFunc("/api/events", s.handleWebSocket)

	handler := s.withMiddleware(mux)
	addr := fmt.Sprintf(":%d", s.cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln

	server := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("web server listening", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr reports the bound address, useful when the configured port is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/api/") && s.cfg.Auth != "" {
			if !s.checkAuth(w, r) {
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// checkAuth accepts the shared token as a Bearer token or as the Basic
// Auth password. Returns true if authenticated.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token == s.cfg.Auth {
		return true
	}
	if _, pass, ok := r.BasicAuth(); ok && pass == s.cfg.Auth {
		return true
	}

	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}
