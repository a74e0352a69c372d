// Package statestore persists the auction state as a single versioned
// JSON record under a fixed key.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/vanguard/go/internal/models"
)

// Key is the fixed record key shared by every repository.
const Key = "auction_state_v7"

// ErrNotFound is returned by Load when no usable record exists. Corrupt
// and version-mismatched records are reported the same way so callers
// re-initialize instead of failing.
var ErrNotFound = errors.New("auction state not found")

func encodeState(st *models.AuctionState) ([]byte, error) {
	if st == nil {
		return nil, errors.New("encode state: nil state")
	}
	b, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return b, nil
}

func decodeState(b []byte, backend string) (*models.AuctionState, error) {
	if len(b) == 0 {
		return nil, ErrNotFound
	}
	var st models.AuctionState
	if err := json.Unmarshal(b, &st); err != nil {
		log.Warn().Err(err).Str("backend", backend).Msg("Discarding corrupt auction state")
		return nil, ErrNotFound
	}
	if st.Version != models.SchemaVersion {
		log.Warn().
			Int("version", st.Version).
			Int("want", models.SchemaVersion).
			Str("backend", backend).
			Msg("Discarding auction state with unsupported version")
		return nil, ErrNotFound
	}
	if st.Students == nil || st.Vanguards == nil {
		log.Warn().Str("backend", backend).Msg("Discarding incomplete auction state")
		return nil, ErrNotFound
	}
	return &st, nil
}
