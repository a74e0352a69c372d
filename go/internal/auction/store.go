// Package auction owns the authoritative auction state and every
// transition applied to it.
package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/vanguard/go/internal/broadcast"
	"github.com/mcdev12/vanguard/go/internal/models"
	"github.com/mcdev12/vanguard/go/internal/shuffle"
	"github.com/mcdev12/vanguard/go/internal/statestore"
)

// Repository persists the single state record. Load returns
// statestore.ErrNotFound when no usable record exists.
type Repository interface {
	Load(ctx context.Context) (*models.AuctionState, error)
	Save(ctx context.Context, st *models.AuctionState) error
}

// ActionRecorder receives an entry for every committed operator action.
type ActionRecorder interface {
	Record(entry models.ActionEntry)
}

// SaleNotifier is told about every confirmed sale. It must not block.
type SaleNotifier interface {
	NotifySale(n models.SaleNotification)
}

// Origin tags where a change came from.
type Origin string

const (
	// OriginLocal is a mutation applied by this store.
	OriginLocal Origin = "local"
	// OriginPeer is a save by another store sharing the repository.
	OriginPeer Origin = "peer"
	// OriginRemote is a snapshot received from the relay.
	OriginRemote Origin = "remote"
)

// Change is delivered to observers after a save, in save order and
// while the store's write lock is held. State must be treated as
// read-only, and observers must not call back into store mutations.
type Change struct {
	Origin Origin
	State  *models.AuctionState
}

type Option func(*Store)

func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithRoster(r Roster) Option {
	return func(s *Store) { s.roster = r }
}

func WithActionRecorder(r ActionRecorder) Option {
	return func(s *Store) { s.recorder = r }
}

func WithSaleNotifier(n SaleNotifier) Option {
	return func(s *Store) { s.notifier = n }
}

// Store serializes load-validate-save cycles against a Repository and
// fans changes out to observers and the broadcast channel.
type Store struct {
	id       string
	repo     Repository
	channel  broadcast.Channel
	clock    clockwork.Clock
	roster   Roster
	recorder ActionRecorder
	notifier SaleNotifier

	mu sync.Mutex

	obsMu     sync.RWMutex
	observers map[uint64]func(Change)
	nextObs   uint64

	listenMu   sync.Mutex
	stopListen func()
}

// NewStore builds a store. channel may be nil for a store that shares
// its repository with nobody.
func NewStore(repo Repository, channel broadcast.Channel, opts ...Option) *Store {
	s := &Store{
		id:        uuid.NewString(),
		repo:      repo,
		channel:   channel,
		clock:     clockwork.NewRealClock(),
		roster:    DefaultRoster(),
		observers: make(map[uint64]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies this store on the broadcast channel.
func (s *Store) ID() string { return s.id }

// Clock is the time source used for every transition.
func (s *Store) Clock() clockwork.Clock { return s.clock }

// Init loads the persisted state, creating it from the roster when none
// is usable, and starts listening for saves by other stores.
func (s *Store) Init(ctx context.Context) (*models.AuctionState, error) {
	s.mu.Lock()
	st, err := s.repo.Load(ctx)
	created := false
	if errors.Is(err, statestore.ErrNotFound) {
		now := s.clock.Now()
		st = NewState(s.roster, shuffle.NewSeed(now))
		if err = s.save(ctx, st, now); err == nil {
			created = true
			s.notifyObservers(Change{Origin: OriginLocal, State: st})
		}
	}
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("init auction state: %w", err)
	}

	if created {
		log.Info().
			Str("seed", st.ShuffleSeed).
			Int("students", len(st.Students)).
			Int("vanguards", len(st.Vanguards)).
			Msg("Created new auction state")
		s.announce(ctx, OriginLocal)
	}

	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.channel != nil && s.stopListen == nil {
		stop, err := s.channel.Listen(s.onNotice)
		if err != nil {
			return nil, fmt.Errorf("listen on channel: %w", err)
		}
		s.stopListen = stop
	}
	return st, nil
}

// Dispose stops listening on the channel and drops every observer.
func (s *Store) Dispose() {
	s.listenMu.Lock()
	stop := s.stopListen
	s.stopListen = nil
	s.listenMu.Unlock()
	if stop != nil {
		stop()
	}
	s.obsMu.Lock()
	s.observers = make(map[uint64]func(Change))
	s.obsMu.Unlock()
}

// Subscribe registers fn for every change and returns its unsubscribe.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.obsMu.Lock()
	s.nextObs++
	id := s.nextObs
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// State loads the current persisted state.
func (s *Store) State(ctx context.Context) (*models.AuctionState, error) {
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (*models.AuctionState, error) {
	st, err := s.repo.Load(ctx)
	if errors.Is(err, statestore.ErrNotFound) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return st, nil
}

func (s *Store) save(ctx context.Context, st *models.AuctionState, now time.Time) error {
	st.UpdatedAt = now
	if err := s.repo.Save(ctx, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// mutation edits st in place. It must check every precondition before
// touching st and reports false when nothing changed.
type mutation func(st *models.AuctionState, now time.Time) (bool, error)

func (s *Store) mutate(ctx context.Context, fn mutation) (*models.AuctionState, error) {
	s.mu.Lock()
	st, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	now := s.clock.Now()
	changed, err := fn(st, now)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !changed {
		s.mu.Unlock()
		return st, nil
	}
	if err := s.save(ctx, st, now); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.notifyObservers(Change{Origin: OriginLocal, State: st})
	s.mu.Unlock()

	s.announce(ctx, OriginLocal)
	return st, nil
}

// RestoreState replaces the whole state after validating it. It backs
// backup import and relay snapshots.
func (s *Store) RestoreState(ctx context.Context, st *models.AuctionState, origin Origin) (*models.AuctionState, error) {
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	next := st.Clone()

	s.mu.Lock()
	if err := s.save(ctx, next, s.clock.Now()); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.notifyObservers(Change{Origin: origin, State: next})
	s.mu.Unlock()

	log.Info().Str("origin", string(origin)).Int("queue", len(next.Queue)).Msg("Restored auction state")
	s.announce(ctx, origin)
	return next, nil
}

// announce tells other stores on the channel to reload. Notices carry
// no state, so their order does not matter.
func (s *Store) announce(ctx context.Context, origin Origin) {
	if s.channel == nil {
		return
	}
	n := broadcast.Notice{Type: broadcast.TypeStateUpdated, Origin: string(origin), Source: s.id}
	if err := s.channel.Publish(ctx, n); err != nil {
		log.Warn().Err(err).Msg("Failed to publish state notice")
	}
}

func (s *Store) notifyObservers(c Change) {
	s.obsMu.RLock()
	fns := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *Store) onNotice(n broadcast.Notice) {
	if n.Source == s.id {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load(context.Background())
	if err != nil {
		log.Warn().Err(err).Str("source", n.Source).Msg("Failed to reload state after notice")
		return
	}
	log.Debug().Str("source", n.Source).Msg("Reloaded state saved by peer")
	s.notifyObservers(Change{Origin: OriginPeer, State: st})
}

func (s *Store) record(entry models.ActionEntry) {
	if s.recorder == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock.Now()
	}
	s.recorder.Record(entry)
}
