package auction

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/vanguard/go/internal/broadcast"
	"github.com/mcdev12/vanguard/go/internal/models"
	"github.com/mcdev12/vanguard/go/internal/statestore"
	"github.com/mcdev12/vanguard/go/internal/timer"
)

var epoch = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type recorder struct {
	mu      sync.Mutex
	entries []models.ActionEntry
}

func (r *recorder) Record(e models.ActionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) types() []models.ActionType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ActionType, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Type
	}
	return out
}

type notifier struct {
	sales []models.SaleNotification
}

func (n *notifier) NotifySale(s models.SaleNotification) { n.sales = append(n.sales, s) }

type fixture struct {
	store    *Store
	repo     *statestore.MemoryRepository
	clock    *clockwork.FakeClock
	recorder *recorder
	notifier *notifier
	changes  []Change
}

func seedState(queue ...string) *models.AuctionState {
	students := make(map[string]models.Student, len(queue))
	for _, id := range queue {
		students[id] = models.Student{ID: id, Name: "Name " + id, IdentifierCode: "U-" + id, Status: models.StudentStatusAvailable}
	}
	return &models.AuctionState{
		Version:     models.SchemaVersion,
		ShuffleSeed: "auction-test-seed-1",
		Queue:       append([]string(nil), queue...),
		Students:    students,
		Vanguards: map[string]models.Vanguard{
			"V1": {ID: "V1", Name: "Terra", ColorTag: "emerald", Budget: 100, Squad: []models.Student{}},
			"V2": {ID: "V2", Name: "Aqua", ColorTag: "blue", Budget: 100, Squad: []models.Student{}},
		},
		Timer:     timer.Idle(),
		UpdatedAt: epoch,
	}
}

func newFixture(t *testing.T, st *models.AuctionState) *fixture {
	t.Helper()
	f := &fixture{
		repo:     statestore.NewMemoryRepository(),
		clock:    clockwork.NewFakeClockAt(epoch),
		recorder: &recorder{},
		notifier: &notifier{},
	}
	if st != nil {
		require.NoError(t, f.repo.Save(context.Background(), st))
	}
	f.store = NewStore(f.repo, nil,
		WithClock(f.clock),
		WithActionRecorder(f.recorder),
		WithSaleNotifier(f.notifier),
	)
	_, err := f.store.Init(context.Background())
	require.NoError(t, err)
	f.store.Subscribe(func(c Change) { f.changes = append(f.changes, c) })
	t.Cleanup(f.store.Dispose)
	return f
}

func (f *fixture) state(t *testing.T) *models.AuctionState {
	t.Helper()
	st, err := f.store.State(context.Background())
	require.NoError(t, err)
	return st
}

func (f *fixture) raw(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(f.state(t))
	require.NoError(t, err)
	return string(b)
}

func assertConservation(t *testing.T, st *models.AuctionState) {
	t.Helper()
	require.NoError(t, st.Validate())
	for _, v := range st.Vanguards {
		sum := 0
		for _, member := range v.Squad {
			sum += st.Students[member.ID].Price()
			assert.Equal(t, v.ID, st.Students[member.ID].Buyer())
		}
		assert.Equal(t, sum, v.Spent, "vanguard %s", v.ID)
		assert.LessOrEqual(t, v.Spent, v.Budget, "vanguard %s", v.ID)
	}
}

func TestInitCreatesStateFromRoster(t *testing.T) {
	repo := statestore.NewMemoryRepository()
	store := NewStore(repo, nil, WithClock(clockwork.NewFakeClockAt(epoch)))
	st, err := store.Init(context.Background())
	require.NoError(t, err)
	defer store.Dispose()

	assert.Equal(t, models.SchemaVersion, st.Version)
	assert.Len(t, st.Queue, 24)
	assert.Len(t, st.Vanguards, 4)
	assert.Equal(t, "Ignis", st.Vanguards["v4"].Name)
	assert.Regexp(t, `^auction-\d+-[0-9a-f]{6}$`, st.ShuffleSeed)
	assert.True(t, epoch.Equal(st.UpdatedAt))

	again, err := NewStore(repo, nil).Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, st.ShuffleSeed, again.ShuffleSeed, "second init loads the existing record")
}

func TestInitReplacesCorruptRecord(t *testing.T) {
	repo := statestore.NewMemoryRepository()
	repo.SetRaw([]byte(`{"version":0}`))
	st, err := NewStore(repo, nil).Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SchemaVersion, st.Version)
}

func TestMutationWithoutStateFails(t *testing.T) {
	store := NewStore(statestore.NewMemoryRepository(), nil)
	_, err := store.SkipCurrentStudent(context.Background())
	assert.ErrorIs(t, err, ErrNoState)
}

func TestConfirmSaleHappyPath(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2", "S3"))
	ctx := context.Background()
	_, err := f.store.StartTimer(ctx)
	require.NoError(t, err)

	st, err := f.store.ConfirmSale(ctx, "S1", "V1", 7)
	require.NoError(t, err)

	s1 := st.Students["S1"]
	assert.Equal(t, models.StudentStatusSold, s1.Status)
	assert.Equal(t, "V1", s1.Buyer())
	assert.Equal(t, 7, s1.Price())
	assert.Equal(t, 7, st.Vanguards["V1"].Spent)
	require.Len(t, st.Vanguards["V1"].Squad, 1)
	assert.Equal(t, "S1", st.Vanguards["V1"].Squad[0].ID)
	assert.Equal(t, []string{"S2", "S3"}, st.Queue)
	assert.Equal(t, timer.Idle(), st.Timer)
	assert.Equal(t, &models.LastAction{Type: models.LastActionSale, StudentID: "S1", VanguardID: "V1", Price: 7}, st.LastAction)
	assertConservation(t, st)

	assert.Equal(t, []models.SaleNotification{{StudentID: "S1", Name: "Name S1", Price: 7, VanguardName: "Terra"}}, f.notifier.sales)
	assert.Equal(t, []models.ActionType{models.ActionSale}, f.recorder.types())
	assert.Equal(t, OriginLocal, f.changes[len(f.changes)-1].Origin)
}

func TestConfirmSaleInsufficientBudget(t *testing.T) {
	st := seedState("S1", "S2", "S3")
	v := st.Vanguards["V1"]
	v.Spent = 98
	st.Vanguards["V1"] = v
	f := newFixture(t, st)
	before := f.raw(t)

	_, err := f.store.ConfirmSale(context.Background(), "S1", "V1", 5)
	require.ErrorIs(t, err, ErrInsufficientBudget)
	assert.Contains(t, err.Error(), "short by 3")
	assert.Equal(t, before, f.raw(t))
	assert.Empty(t, f.changes)
	assert.Empty(t, f.notifier.sales)
}

func TestConfirmSalePreconditions(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2"))
	ctx := context.Background()
	before := f.raw(t)

	_, err := f.store.ConfirmSale(ctx, "S2", "V1", 5)
	assert.ErrorIs(t, err, ErrNotCurrentStudent)

	_, err = f.store.ConfirmSale(ctx, "S1", "V9", 5)
	assert.ErrorIs(t, err, ErrUnknownVanguard)

	_, err = f.store.ConfirmSale(ctx, "S1", "V1", -1)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	assert.Equal(t, before, f.raw(t))
}

func TestConfirmSaleRejectsUnavailableHead(t *testing.T) {
	st := seedState("S1", "S2")
	s1 := st.Students["S1"]
	s1.MarkUnsold()
	st.Students["S1"] = s1
	f := newFixture(t, st)

	_, err := f.store.ConfirmSale(context.Background(), "S1", "V1", 5)
	assert.ErrorIs(t, err, ErrStudentUnavailable)
}

func TestConfirmSaleSpendsWholeBudget(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2"))
	st, err := f.store.ConfirmSale(context.Background(), "S1", "V1", 100)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Vanguards["V1"].Remaining())
}

func TestUnsoldThenRestored(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2"))
	ctx := context.Background()

	st, err := f.store.MarkAsUnsold(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusUnsold, st.Students["S1"].Status)
	assert.Nil(t, st.Students["S1"].SoldTo)
	assert.Equal(t, []string{"S2"}, st.Queue)
	assert.Len(t, st.UnsoldStudents(), 1)

	st, err = f.store.ReturnFromUnsold(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusAvailable, st.Students["S1"].Status)
	assert.Equal(t, []string{"S1", "S2"}, st.Queue)

	_, err = f.store.ReturnFromUnsold(ctx, "S1")
	assert.ErrorIs(t, err, ErrStudentNotUnsold)
	_, err = f.store.ReturnFromUnsold(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUnknownStudent)
	_, err = f.store.MarkAsUnsold(ctx, "S2")
	assert.ErrorIs(t, err, ErrNotCurrentStudent)

	assert.Equal(t, []models.ActionType{models.ActionUnsold, models.ActionReturn}, f.recorder.types())
}

func TestUndoLastSaleReinsertsAtFront(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2", "S3"))
	ctx := context.Background()

	_, err := f.store.ConfirmSale(ctx, "S1", "V1", 7)
	require.NoError(t, err)

	st, err := f.store.UndoLastSale(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusAvailable, st.Students["S1"].Status)
	assert.Equal(t, 0, st.Vanguards["V1"].Spent)
	assert.Empty(t, st.Vanguards["V1"].Squad)
	assert.Equal(t, []string{"S1", "S2", "S3"}, st.Queue)
	assert.Nil(t, st.LastAction)
	assertConservation(t, st)

	_, err = f.store.UndoLastSale(ctx)
	assert.ErrorIs(t, err, ErrNoActionToUndo)
}

func TestUndoLastSaleAfterUndoSaleByID(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2", "S3"))
	ctx := context.Background()

	_, err := f.store.ConfirmSale(ctx, "S1", "V1", 7)
	require.NoError(t, err)
	_, err = f.store.UndoSale(ctx, "S1")
	require.NoError(t, err)

	_, err = f.store.UndoLastSale(ctx)
	assert.ErrorIs(t, err, ErrNoActionToUndo, "undo by id consumes the undo slot")
}

func TestUndoSaleQueuesAtTail(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2", "S3"))
	ctx := context.Background()

	_, err := f.store.ConfirmSale(ctx, "S1", "V1", 7)
	require.NoError(t, err)
	_, err = f.store.StartTimer(ctx)
	require.NoError(t, err)
	running := f.state(t).Timer

	st, err := f.store.UndoSale(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, []string{"S2", "S3", "S1"}, st.Queue)
	assert.Equal(t, 0, st.Vanguards["V1"].Spent)
	assert.Equal(t, running.StartedAt.UnixNano(), st.Timer.StartedAt.UnixNano(), "undo leaves the timer alone")

	_, err = f.store.UndoSale(ctx, "S1")
	assert.ErrorIs(t, err, ErrStudentNotSold)
}

func TestUpdateSale(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2", "S3"))
	ctx := context.Background()

	_, err := f.store.ConfirmSale(ctx, "S1", "V1", 7)
	require.NoError(t, err)

	st, err := f.store.UpdateSale(ctx, "S1", "V2", 9)
	require.NoError(t, err)
	assert.Equal(t, "V2", st.Students["S1"].Buyer())
	assert.Equal(t, 0, st.Vanguards["V1"].Spent)
	assert.Empty(t, st.Vanguards["V1"].Squad)
	assert.Equal(t, 9, st.Vanguards["V2"].Spent)
	assert.Equal(t, []string{"S2", "S3"}, st.Queue)
	assert.Equal(t, "V2", st.LastAction.VanguardID)
	assert.Equal(t, 9, st.LastAction.Price)
	assertConservation(t, st)

	st, err = f.store.UpdateSale(ctx, "S1", "V2", 100)
	require.NoError(t, err, "the old price is refunded before the budget check")
	assert.Equal(t, 100, st.Vanguards["V2"].Spent)

	_, err = f.store.UpdateSale(ctx, "S1", "V9", 1)
	assert.ErrorIs(t, err, ErrUnknownVanguard)
	_, err = f.store.UpdateSale(ctx, "S2", "V1", 1)
	assert.ErrorIs(t, err, ErrStudentNotSold)
	_, err = f.store.UpdateSale(ctx, "S1", "V1", -4)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestUpdateSaleOverBudget(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2", "S3"))
	ctx := context.Background()

	_, err := f.store.ConfirmSale(ctx, "S1", "V1", 7)
	require.NoError(t, err)
	_, err = f.store.ConfirmSale(ctx, "S2", "V2", 95)
	require.NoError(t, err)
	before := f.raw(t)

	_, err = f.store.UpdateSale(ctx, "S1", "V2", 6)
	require.ErrorIs(t, err, ErrInsufficientBudget)
	assert.Equal(t, before, f.raw(t))
}

func TestUpdateSaleNoopDoesNotPersistOrNotify(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2", "S3"))
	ctx := context.Background()

	_, err := f.store.ConfirmSale(ctx, "S1", "V1", 7)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	first, err := f.store.UpdateSale(ctx, "S1", "V2", 9)
	require.NoError(t, err)
	notified := len(f.changes)
	entries := len(f.recorder.types())

	f.clock.Advance(time.Second)
	second, err := f.store.UpdateSale(ctx, "S1", "V2", 9)
	require.NoError(t, err)

	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
	assert.True(t, first.UpdatedAt.Equal(f.state(t).UpdatedAt))
	assert.Len(t, f.changes, notified)
	assert.Len(t, f.recorder.types(), entries)
}

func TestBudgetConservation(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2", "S3", "S4", "S5"))
	ctx := context.Background()

	steps := []func() (*models.AuctionState, error){
		func() (*models.AuctionState, error) { return f.store.ConfirmSale(ctx, "S1", "V1", 30) },
		func() (*models.AuctionState, error) { return f.store.ConfirmSale(ctx, "S2", "V1", 40) },
		func() (*models.AuctionState, error) { return f.store.UpdateSale(ctx, "S1", "V2", 60) },
		func() (*models.AuctionState, error) { return f.store.ConfirmSale(ctx, "S3", "V2", 40) },
		func() (*models.AuctionState, error) { return f.store.UndoSale(ctx, "S2") },
		func() (*models.AuctionState, error) { return f.store.UpdateSale(ctx, "S1", "V2", 10) },
		func() (*models.AuctionState, error) { return f.store.ConfirmSale(ctx, "S4", "V1", 100) },
		func() (*models.AuctionState, error) { return f.store.UndoLastSale(ctx) },
		func() (*models.AuctionState, error) { return f.store.UpdateSale(ctx, "S3", "V1", 100) },
	}
	for i, step := range steps {
		st, err := step()
		require.NoError(t, err, "step %d", i)
		assertConservation(t, st)
	}

	_, err := f.store.UpdateSale(ctx, "S1", "V1", 1)
	assert.ErrorIs(t, err, ErrInsufficientBudget)
	assertConservation(t, f.state(t))
}

func TestSendToEndOfQueueKeepsHead(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2", "S3", "S4", "S5"))
	ctx := context.Background()

	for _, id := range []string{"S3", "S2", "S5", "S3", "S4", "S2"} {
		st, err := f.store.SendToEndOfQueue(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "S1", st.Queue[0])
		assert.Equal(t, id, st.Queue[len(st.Queue)-1])
		assert.Len(t, st.Queue, 5)
	}

	_, err := f.store.SendToEndOfQueue(ctx, "S1")
	assert.ErrorIs(t, err, ErrCannotMoveCurrentStudent)
	_, err = f.store.SendToEndOfQueue(ctx, "S9")
	assert.ErrorIs(t, err, ErrNotInQueue)
	assert.Equal(t, "S1", f.state(t).Queue[0])
}

func TestSkipCurrentStudent(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2", "S3"))
	ctx := context.Background()

	st, err := f.store.SkipCurrentStudent(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"S2", "S3", "S1"}, st.Queue)
	assert.Equal(t, models.StudentStatusAvailable, st.Students["S1"].Status)

	f2 := newFixture(t, seedState())
	_, err = f2.store.SkipCurrentStudent(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestShuffleRemainingQueueKeepsHead(t *testing.T) {
	ids := []string{"S01", "S02", "S03", "S04", "S05", "S06", "S07", "S08", "S09", "S10"}
	f := newFixture(t, seedState(ids...))
	ctx := context.Background()

	st, err := f.store.ShuffleRemainingQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S01", st.Queue[0])
	assert.ElementsMatch(t, ids, st.Queue)
	assert.Equal(t, "auction-test-seed-1", st.ShuffleSeed)

	st, err = f.store.ForceReshuffle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S01", st.Queue[0])
	assert.ElementsMatch(t, ids, st.Queue)
}

func TestShuffleShortQueueIsNoop(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2"))
	st, err := f.store.ShuffleRemainingQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, st.Queue)
	assert.Empty(t, f.changes)
}

func TestResetAuction(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2"))
	ctx := context.Background()
	_, err := f.store.ConfirmSale(ctx, "S1", "V1", 7)
	require.NoError(t, err)

	st, err := f.store.ResetAuction(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Students, 24)
	assert.Len(t, st.Queue, 24)
	assert.Nil(t, st.LastAction)
	for _, v := range st.Vanguards {
		assert.Zero(t, v.Spent)
	}
	assertConservation(t, st)
}

func TestGlobalFreezePausesTimer(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2"))
	ctx := context.Background()

	_, err := f.store.StartTimer(ctx)
	require.NoError(t, err)
	f.clock.Advance(6 * time.Second)

	st, err := f.store.SetGlobalFreeze(ctx, true)
	require.NoError(t, err)
	assert.True(t, st.GlobalFreeze)
	assert.True(t, timer.Paused(st.Timer))
	assert.Equal(t, 9, timer.Remaining(st.Timer, f.clock.Now()))

	st, err = f.store.SetGlobalFreeze(ctx, false)
	require.NoError(t, err)
	assert.False(t, st.GlobalFreeze)
	assert.True(t, timer.Paused(st.Timer), "unfreezing does not resume the clock")
}

func TestTimerOperations(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2"))
	ctx := context.Background()

	_, err := f.store.StartTimer(ctx)
	require.NoError(t, err)
	notified := len(f.changes)

	_, err = f.store.StartTimer(ctx)
	require.NoError(t, err)
	assert.Len(t, f.changes, notified, "starting a running timer is a no-op")

	f.clock.Advance(5 * time.Second)
	st, err := f.store.PauseTimer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, timer.Remaining(st.Timer, f.clock.Now()))

	f.clock.Advance(30 * time.Second)
	st, err = f.store.StartTimer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, timer.Remaining(st.Timer, f.clock.Now()))

	st, err = f.store.ResetTimer(ctx)
	require.NoError(t, err)
	assert.Equal(t, timer.DefaultDuration, timer.Remaining(st.Timer, f.clock.Now()))
	assert.True(t, timer.Running(st.Timer))
}

func TestAnnouncementAndSfx(t *testing.T) {
	f := newFixture(t, seedState("S1"))
	ctx := context.Background()

	text := "Lunch in 5"
	st, err := f.store.BroadcastAnnouncement(ctx, &text)
	require.NoError(t, err)
	require.NotNil(t, st.ActiveAnnouncement)
	assert.Equal(t, text, *st.ActiveAnnouncement)

	st, err = f.store.BroadcastAnnouncement(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, st.ActiveAnnouncement)

	first, err := f.store.TriggerSfx(ctx, "gavel")
	require.NoError(t, err)
	second, err := f.store.TriggerSfx(ctx, "gavel")
	require.NoError(t, err)
	assert.Equal(t, "gavel", second.SfxTrigger.ID)
	assert.Greater(t, second.SfxTrigger.Timestamp, first.SfxTrigger.Timestamp)
}

func TestPeerStoresShareRepository(t *testing.T) {
	ctx := context.Background()
	repo := statestore.NewMemoryRepository()
	require.NoError(t, repo.Save(ctx, seedState("S1", "S2")))
	hub := broadcast.NewHub()
	clock := clockwork.NewFakeClockAt(epoch)

	a := NewStore(repo, hub.Channel("auction_sync"), WithClock(clock))
	b := NewStore(repo, hub.Channel("auction_sync"), WithClock(clock))
	_, err := a.Init(ctx)
	require.NoError(t, err)
	_, err = b.Init(ctx)
	require.NoError(t, err)
	defer a.Dispose()
	defer b.Dispose()

	var seenA, seenB []Change
	a.Subscribe(func(c Change) { seenA = append(seenA, c) })
	b.Subscribe(func(c Change) { seenB = append(seenB, c) })

	_, err = a.ConfirmSale(ctx, "S1", "V1", 7)
	require.NoError(t, err)

	require.Len(t, seenA, 1)
	assert.Equal(t, OriginLocal, seenA[0].Origin)
	require.Len(t, seenB, 1)
	assert.Equal(t, OriginPeer, seenB[0].Origin)
	assert.Equal(t, []string{"S2"}, seenB[0].State.Queue)

	b.Dispose()
	_, err = a.SkipCurrentStudent(ctx)
	require.NoError(t, err)
	assert.Len(t, seenB, 1, "disposed store stops listening")
}

func TestRestoreState(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2"))
	ctx := context.Background()

	incoming := seedState("S7", "S8", "S9")
	st, err := f.store.RestoreState(ctx, incoming, OriginRemote)
	require.NoError(t, err)
	assert.Equal(t, []string{"S7", "S8", "S9"}, st.Queue)
	assert.Equal(t, OriginRemote, f.changes[len(f.changes)-1].Origin)

	bad := seedState("S1")
	bad.Version = 3
	_, err = f.store.RestoreState(ctx, bad, OriginRemote)
	assert.ErrorIs(t, err, ErrInvalidBackup)
	assert.Equal(t, []string{"S7", "S8", "S9"}, f.state(t).Queue)
}

func TestChangesDeliveredInSaveOrder(t *testing.T) {
	f := newFixture(t, seedState("S1", "S2"))
	ctx := context.Background()

	var mu sync.Mutex
	var delivered []string
	entered := make(chan struct{})
	release := make(chan struct{})
	f.store.Subscribe(func(c Change) {
		text := *c.State.ActiveAnnouncement
		mu.Lock()
		delivered = append(delivered, text)
		mu.Unlock()
		if text == "A" {
			close(entered)
			<-release
		}
	})

	a, b := "A", "B"
	firstDone := make(chan error, 1)
	go func() {
		_, err := f.store.BroadcastAnnouncement(ctx, &a)
		firstDone <- err
	}()
	<-entered

	secondDone := make(chan error, 1)
	go func() {
		_, err := f.store.BroadcastAnnouncement(ctx, &b)
		secondDone <- err
	}()
	assert.Never(t, func() bool { return len(secondDone) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"second mutation waits for the first delivery")

	close(release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A", "B"}, delivered)
	require.NotNil(t, f.state(t).ActiveAnnouncement)
	assert.Equal(t, "B", *f.state(t).ActiveAnnouncement)
}

func TestConcurrentDispose(t *testing.T) {
	ctx := context.Background()
	repo := statestore.NewMemoryRepository()
	require.NoError(t, repo.Save(ctx, seedState("S1", "S2")))
	hub := broadcast.NewHub()
	clock := clockwork.NewFakeClockAt(epoch)

	a := NewStore(repo, hub.Channel("auction_sync"), WithClock(clock))
	b := NewStore(repo, hub.Channel("auction_sync"), WithClock(clock))
	_, err := a.Init(ctx)
	require.NoError(t, err)
	_, err = b.Init(ctx)
	require.NoError(t, err)
	defer a.Dispose()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Dispose()
		}()
	}
	wg.Wait()

	var seen int
	b.Subscribe(func(Change) { seen++ })
	_, err = a.SkipCurrentStudent(ctx)
	require.NoError(t, err)
	assert.Zero(t, seen)
}
