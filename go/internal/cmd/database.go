package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/vanguard/go/internal/auction"
	"github.com/mcdev12/vanguard/go/internal/config"
	"github.com/mcdev12/vanguard/go/internal/statestore"
)

type repository interface {
	auction.Repository
	Close() error
}

type nopCloser struct {
	*statestore.MemoryRepository
}

func (nopCloser) Close() error { return nil }

func setupRepository(cfg config.StoreConfig) (repository, error) {
	switch cfg.Driver {
	case config.StoreBolt:
		repo, err := statestore.OpenBolt(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		log.Info().Str("path", cfg.Path).Msg("using bolt state store")
		return repo, nil
	case config.StoreSQLite:
		repo, err := statestore.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.Path).Msg("using sqlite state store")
		return repo, nil
	case config.StoreMemory:
		log.Warn().Msg("using in-memory state store, state is lost on exit")
		return nopCloser{statestore.NewMemoryRepository()}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
