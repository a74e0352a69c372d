package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/vanguard/go/clients/salesink"
	"github.com/mcdev12/vanguard/go/internal/actionlog"
	"github.com/mcdev12/vanguard/go/internal/api"
	"github.com/mcdev12/vanguard/go/internal/auction"
	"github.com/mcdev12/vanguard/go/internal/broadcast"
	"github.com/mcdev12/vanguard/go/internal/config"
	"github.com/mcdev12/vanguard/go/internal/syncclient"
)

// Services is everything the agent runs, in dependency order.
type Services struct {
	Store    *auction.Store
	Actions  *actionlog.SQLiteLog
	SaleSink *salesink.Client
	Sync     *syncclient.Client

	repo repository
	nc   *nats.Conn
}

func setupServices(ctx context.Context, cfg *config.Agent) (*Services, error) {
	// Storage → channel → store → sync client
	s := &Services{}

	repo, err := setupRepository(cfg.Store)
	if err != nil {
		return nil, err
	}
	s.repo = repo

	channel, err := s.setupChannel(cfg.Channel)
	if err != nil {
		s.Close()
		return nil, err
	}

	roster := auction.DefaultRoster()
	if cfg.Files.RosterPath != "" {
		roster, err = auction.LoadRoster(cfg.Files.RosterPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to load roster: %w", err)
		}
		log.Info().Str("path", cfg.Files.RosterPath).Int("students", len(roster.Students)).Msg("loaded roster")
	}

	opts := []auction.Option{auction.WithRoster(roster)}

	if cfg.Files.ActionLogPath != "" {
		actions, err := actionlog.OpenSQLite(cfg.Files.ActionLogPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open action log: %w", err)
		}
		s.Actions = actions
		opts = append(opts, auction.WithActionRecorder(actions))
	}

	if cfg.SaleSink.URL != "" {
		sinkCfg := salesink.DefaultConfig(cfg.SaleSink.URL)
		sinkCfg.Timeout = cfg.SaleSink.Timeout
		s.SaleSink = salesink.New(sinkCfg)
		s.SaleSink.Start(ctx)
		opts = append(opts, auction.WithSaleNotifier(s.SaleSink))
	}

	s.Store = auction.NewStore(repo, channel, opts...)
	if _, err := s.Store.Init(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Relay.URL != "" {
		clientID := "agent-" + uuid.NewString()[:8]
		s.Sync = syncclient.New(syncclient.DefaultConfig(cfg.Relay.URL, cfg.Relay.Room, clientID), s.Store, nil)
		if err := s.Sync.Start(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start sync client: %w", err)
		}
	} else {
		log.Info().Msg("no relay configured, running offline")
	}
	return s, nil
}

func (s *Services) setupChannel(cfg config.ChannelConfig) (broadcast.Channel, error) {
	switch cfg.Driver {
	case config.ChannelNATS:
		natsCfg := broadcast.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		nc, err := broadcast.ConnectNATS(natsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		s.nc = nc
		log.Info().Str("subject", broadcast.Subject(cfg.Name)).Msg("using NATS broadcast channel")
		return broadcast.NewNATSChannel(nc, cfg.Name), nil
	default:
		return broadcast.NewHub().Channel(cfg.Name), nil
	}
}

// handler builds the API over the running services.
func (s *Services) handler() *api.Handler {
	var actions api.ActionLog
	if s.Actions != nil {
		actions = s.Actions
	}
	var link api.LinkStatus
	if s.Sync != nil {
		link = s.Sync
	}
	return api.NewHandler(s.Store, actions, link)
}

// Close stops everything in reverse dependency order.
func (s *Services) Close() {
	if s.Sync != nil {
		s.Sync.Close()
	}
	if s.Store != nil {
		s.Store.Dispose()
	}
	if s.SaleSink != nil {
		s.SaleSink.Close()
	}
	if s.Actions != nil {
		if err := s.Actions.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close action log")
		}
	}
	if s.nc != nil {
		s.nc.Close()
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close state store")
		}
	}
}
