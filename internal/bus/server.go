package bus

import (
	"fmt"
	"os"
	"time"

	"github.com/kpapadakis/ledgerdesk/internal/config"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

// Server runs the embedded NATS instance used to wake response waiters.
// The durable state lives in sqlite; NATS carries only notifications.
type Server struct {
	server *natsserver.Server
	cfg    config.NATSConfig
}

func NewServer(cfg config.NATSConfig) (*Server, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create nats data dir: %w", err)
	}

	opts := &natsserver.Options{
		Port:     cfg.Port,
		NoLog:    true,
		NoSigs:   true,
		StoreDir: cfg.DataDir,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("nats server not ready")
	}

	return &Server{
		server: ns,
		cfg:    cfg,
	}, nil
}

func (s *Server) ClientURL() string {
	return s.server.ClientURL()
}

func (s *Server) Port() int {
	return s.cfg.Port
}

func (s *Server) Close() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}
