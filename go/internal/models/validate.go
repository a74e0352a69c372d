package models

import (
	"errors"
	"fmt"
)

var (
	ErrVersionMismatch = errors.New("unsupported state version")
	ErrMalformedState  = errors.New("malformed auction state")
)

// Validate checks the structural invariants of a state received from
// outside the store: backups and relay snapshots.
func (s *AuctionState) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: empty state", ErrMalformedState)
	}
	if s.Version != SchemaVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, s.Version, SchemaVersion)
	}
	if s.Students == nil || s.Vanguards == nil {
		return fmt.Errorf("%w: students and vanguards are required", ErrMalformedState)
	}
	if s.Timer.Duration <= 0 {
		return fmt.Errorf("%w: timer duration must be positive", ErrMalformedState)
	}

	seen := make(map[string]struct{}, len(s.Queue))
	for _, id := range s.Queue {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate queue entry %q", ErrMalformedState, id)
		}
		seen[id] = struct{}{}
		st, ok := s.Students[id]
		if !ok {
			return fmt.Errorf("%w: queue entry %q has no student", ErrMalformedState, id)
		}
		if st.Status != StudentStatusAvailable {
			return fmt.Errorf("%w: queued student %q is %s", ErrMalformedState, id, st.Status)
		}
	}

	squads := make(map[string]int)
	owned := make(map[string]map[string]struct{})
	for id, st := range s.Students {
		if st.ID != id {
			return fmt.Errorf("%w: student key %q holds id %q", ErrMalformedState, id, st.ID)
		}
		switch st.Status {
		case StudentStatusSold:
			if st.SoldTo == nil || st.SoldPrice == nil {
				return fmt.Errorf("%w: sold student %q has no sale", ErrMalformedState, id)
			}
			if _, ok := s.Vanguards[*st.SoldTo]; !ok {
				return fmt.Errorf("%w: student %q sold to unknown vanguard %q", ErrMalformedState, id, *st.SoldTo)
			}
			squads[*st.SoldTo] += *st.SoldPrice
			if owned[*st.SoldTo] == nil {
				owned[*st.SoldTo] = make(map[string]struct{})
			}
			owned[*st.SoldTo][id] = struct{}{}
		case StudentStatusAvailable, StudentStatusUnsold:
			if st.SoldTo != nil || st.SoldPrice != nil {
				return fmt.Errorf("%w: %s student %q carries sale fields", ErrMalformedState, st.Status, id)
			}
		default:
			return fmt.Errorf("%w: student %q has status %q", ErrMalformedState, id, st.Status)
		}
	}

	for id, v := range s.Vanguards {
		if v.ID != id {
			return fmt.Errorf("%w: vanguard key %q holds id %q", ErrMalformedState, id, v.ID)
		}
		if v.Spent != squads[id] {
			return fmt.Errorf("%w: vanguard %q spent %d but squad totals %d", ErrMalformedState, id, v.Spent, squads[id])
		}
		if v.Spent > v.Budget {
			return fmt.Errorf("%w: vanguard %q spent %d over budget %d", ErrMalformedState, id, v.Spent, v.Budget)
		}
		listed := make(map[string]struct{}, len(v.Squad))
		for _, member := range v.Squad {
			if _, ok := owned[id][member.ID]; !ok {
				return fmt.Errorf("%w: vanguard %q lists %q which it does not own", ErrMalformedState, id, member.ID)
			}
			if _, dup := listed[member.ID]; dup {
				return fmt.Errorf("%w: vanguard %q lists %q twice", ErrMalformedState, id, member.ID)
			}
			listed[member.ID] = struct{}{}
		}
		// Every student sold to v must be in its squad.
		if len(listed) != len(owned[id]) {
			return fmt.Errorf("%w: vanguard %q squad has %d of %d owned students", ErrMalformedState, id, len(listed), len(owned[id]))
		}
	}
	return nil
}
