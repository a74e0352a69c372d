// Package relay is a message relay that holds the latest auction
// snapshot per room and rebroadcasts updates to every other client. It
// never inspects payloads.
package relay

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service wires the connection manager to its HTTP handlers.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

type Config struct {
	ConnectionConfig ConnectionConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

func NewService(config Config) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(connectionManager),
	}
}

// Start runs until ctx is cancelled, then disconnects every client.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting relay service")

	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("relay service shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	s.connectionManager.CloseAll()
	log.Info().Msg("relay service stopped")
	return nil
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("relay routes registered")
}

func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
