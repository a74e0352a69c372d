package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/vanguard/go/internal/models"
	"github.com/mcdev12/vanguard/go/internal/shuffle"
	"github.com/mcdev12/vanguard/go/internal/timer"
)

// checkCurrent verifies that id is the head of the queue and biddable.
func checkCurrent(st *models.AuctionState, studentID string) (models.Student, error) {
	if len(st.Queue) == 0 || st.Queue[0] != studentID {
		return models.Student{}, fmt.Errorf("%w: %s", ErrNotCurrentStudent, studentID)
	}
	student, ok := st.Students[studentID]
	if !ok {
		return models.Student{}, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}
	if student.Status != models.StudentStatusAvailable {
		return models.Student{}, fmt.Errorf("%w: %s is %s", ErrStudentUnavailable, studentID, student.Status)
	}
	return student, nil
}

func soldStudent(st *models.AuctionState, studentID string) (models.Student, error) {
	student, ok := st.Students[studentID]
	if !ok {
		return models.Student{}, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}
	if student.Status != models.StudentStatusSold {
		return models.Student{}, fmt.Errorf("%w: %s is %s", ErrStudentNotSold, studentID, student.Status)
	}
	return student, nil
}

func checkBudget(v models.Vanguard, available, price int) error {
	if price > available {
		return fmt.Errorf("%w: %s is short by %d (price %d, remaining %d)",
			ErrInsufficientBudget, v.Name, price-available, price, available)
	}
	return nil
}

// refund reverses a sale on the owning vanguard. It leaves the student
// record alone.
func refund(st *models.AuctionState, student models.Student) {
	v, ok := st.Vanguards[student.Buyer()]
	if !ok {
		return
	}
	v.RemoveFromSquad(student.ID, student.Price())
	st.Vanguards[v.ID] = v
}

func without(queue []string, id string) []string {
	out := make([]string, 0, len(queue))
	for _, q := range queue {
		if q != id {
			out = append(out, q)
		}
	}
	return out
}

// ConfirmSale sells the current student to a vanguard.
func (s *Store) ConfirmSale(ctx context.Context, studentID, vanguardID string, price int) (*models.AuctionState, error) {
	if price < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPrice, price)
	}
	st, err := s.mutate(ctx, func(st *models.AuctionState, _ time.Time) (bool, error) {
		student, err := checkCurrent(st, studentID)
		if err != nil {
			return false, err
		}
		v, ok := st.Vanguards[vanguardID]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownVanguard, vanguardID)
		}
		if err := checkBudget(v, v.Remaining(), price); err != nil {
			return false, err
		}

		student.MarkSold(vanguardID, price)
		st.Students[studentID] = student
		v.AddToSquad(student, price)
		st.Vanguards[vanguardID] = v
		st.Queue = st.Queue[1:]
		st.LastAction = &models.LastAction{
			Type:       models.LastActionSale,
			StudentID:  studentID,
			VanguardID: vanguardID,
			Price:      price,
		}
		st.Timer = timer.Idle()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	student := st.Students[studentID]
	vanguard := st.Vanguards[vanguardID]
	log.Info().
		Str("student_id", studentID).
		Str("vanguard_id", vanguardID).
		Int("price", price).
		Int("remaining", vanguard.Remaining()).
		Msg("Sale confirmed")
	s.record(models.ActionEntry{
		Type:        models.ActionSale,
		StudentID:   studentID,
		StudentName: student.Name,
		Vanguard:    vanguard.Name,
		Price:       &price,
	})
	if s.notifier != nil {
		s.notifier.NotifySale(models.SaleNotification{
			StudentID:    studentID,
			Name:         student.Name,
			Price:        price,
			VanguardName: vanguard.Name,
		})
	}
	return st, nil
}

// MarkAsUnsold passes the current student without a sale.
func (s *Store) MarkAsUnsold(ctx context.Context, studentID string) (*models.AuctionState, error) {
	st, err := s.mutate(ctx, func(st *models.AuctionState, _ time.Time) (bool, error) {
		student, err := checkCurrent(st, studentID)
		if err != nil {
			return false, err
		}
		student.MarkUnsold()
		st.Students[studentID] = student
		st.Queue = st.Queue[1:]
		st.Timer = timer.Idle()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("student_id", studentID).Msg("Student marked unsold")
	s.record(models.ActionEntry{Type: models.ActionUnsold, StudentID: studentID, StudentName: st.Students[studentID].Name})
	return st, nil
}

// ReturnFromUnsold puts an unsold student back at the front of the queue.
func (s *Store) ReturnFromUnsold(ctx context.Context, studentID string) (*models.AuctionState, error) {
	st, err := s.mutate(ctx, func(st *models.AuctionState, _ time.Time) (bool, error) {
		student, ok := st.Students[studentID]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
		}
		if student.Status != models.StudentStatusUnsold {
			return false, fmt.Errorf("%w: %s is %s", ErrStudentNotUnsold, studentID, student.Status)
		}
		student.MarkAvailable()
		st.Students[studentID] = student
		st.Queue = append([]string{studentID}, without(st.Queue, studentID)...)
		st.Timer = timer.Idle()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("student_id", studentID).Msg("Student returned from unsold")
	s.record(models.ActionEntry{Type: models.ActionReturn, StudentID: studentID, StudentName: st.Students[studentID].Name})
	return st, nil
}

// SkipCurrentStudent rotates the head of the queue to the tail.
func (s *Store) SkipCurrentStudent(ctx context.Context) (*models.AuctionState, error) {
	var skipped string
	st, err := s.mutate(ctx, func(st *models.AuctionState, _ time.Time) (bool, error) {
		if len(st.Queue) == 0 {
			return false, ErrQueueEmpty
		}
		skipped = st.Queue[0]
		st.Queue = append(st.Queue[1:], skipped)
		st.Timer = timer.Idle()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("student_id", skipped).Msg("Student skipped")
	s.record(models.ActionEntry{Type: models.ActionSkip, StudentID: skipped, StudentName: st.Students[skipped].Name})
	return st, nil
}

// SendToEndOfQueue moves a waiting student to the tail. The current
// student can never be moved this way.
func (s *Store) SendToEndOfQueue(ctx context.Context, studentID string) (*models.AuctionState, error) {
	st, err := s.mutate(ctx, func(st *models.AuctionState, _ time.Time) (bool, error) {
		idx := st.QueueIndex(studentID)
		switch {
		case idx < 0:
			return false, fmt.Errorf("%w: %s", ErrNotInQueue, studentID)
		case idx == 0:
			return false, fmt.Errorf("%w: %s", ErrCannotMoveCurrentStudent, studentID)
		case idx == len(st.Queue)-1:
			return false, nil
		}
		st.Queue = append(without(st.Queue, studentID), studentID)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("student_id", studentID).Msg("Student sent to end of queue")
	s.record(models.ActionEntry{Type: models.ActionSendToEnd, StudentID: studentID, StudentName: st.Students[studentID].Name})
	return st, nil
}

// UndoSale reverts a sale by student id and queues the student at the
// tail so the current pick is not disturbed.
func (s *Store) UndoSale(ctx context.Context, studentID string) (*models.AuctionState, error) {
	var undone models.Student
	st, err := s.mutate(ctx, func(st *models.AuctionState, _ time.Time) (bool, error) {
		student, err := soldStudent(st, studentID)
		if err != nil {
			return false, err
		}
		undone = student
		refund(st, student)
		student.MarkAvailable()
		st.Students[studentID] = student
		st.Queue = append(without(st.Queue, studentID), studentID)
		if st.LastAction != nil && st.LastAction.StudentID == studentID {
			st.LastAction = nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	price := undone.Price()
	log.Info().Str("student_id", studentID).Str("vanguard_id", undone.Buyer()).Int("price", price).Msg("Sale undone")
	s.record(models.ActionEntry{
		Type:        models.ActionUndo,
		StudentID:   studentID,
		StudentName: undone.Name,
		Vanguard:    st.Vanguards[undone.Buyer()].Name,
		Price:       &price,
	})
	return st, nil
}

// UpdateSale moves a sale to another vanguard or price. Repeating the
// current values is a no-op: nothing is saved and nobody is notified.
func (s *Store) UpdateSale(ctx context.Context, studentID, vanguardID string, price int) (*models.AuctionState, error) {
	if price < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPrice, price)
	}
	changed := false
	st, err := s.mutate(ctx, func(st *models.AuctionState, _ time.Time) (bool, error) {
		student, err := soldStudent(st, studentID)
		if err != nil {
			return false, err
		}
		target, ok := st.Vanguards[vanguardID]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownVanguard, vanguardID)
		}
		oldVanguard, oldPrice := student.Buyer(), student.Price()
		if oldVanguard == vanguardID && oldPrice == price {
			return false, nil
		}
		available := target.Remaining()
		if oldVanguard == vanguardID {
			available += oldPrice
		}
		if err := checkBudget(target, available, price); err != nil {
			return false, err
		}

		refund(st, student)
		student.MarkSold(vanguardID, price)
		st.Students[studentID] = student
		target = st.Vanguards[vanguardID]
		target.AddToSquad(student, price)
		st.Vanguards[vanguardID] = target
		if st.LastAction != nil && st.LastAction.StudentID == studentID {
			st.LastAction.VanguardID = vanguardID
			st.LastAction.Price = price
		}
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		log.Debug().Str("student_id", studentID).Msg("Sale update is a no-op")
		return st, nil
	}

	log.Info().Str("student_id", studentID).Str("vanguard_id", vanguardID).Int("price", price).Msg("Sale updated")
	s.record(models.ActionEntry{
		Type:        models.ActionUpdate,
		StudentID:   studentID,
		StudentName: st.Students[studentID].Name,
		Vanguard:    st.Vanguards[vanguardID].Name,
		Price:       &price,
	})
	return st, nil
}

// ResetAuction discards everything and rebuilds the state from the
// roster with a fresh seed.
func (s *Store) ResetAuction(ctx context.Context) (*models.AuctionState, error) {
	st, err := s.mutate(ctx, func(st *models.AuctionState, now time.Time) (bool, error) {
		*st = *NewState(s.roster, shuffle.NewSeed(now))
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("seed", st.ShuffleSeed).Msg("Auction reset")
	s.record(models.ActionEntry{Type: models.ActionReset})
	return st, nil
}

// ShuffleRemainingQueue reorders everyone behind the current student
// using a seed derived from the auction seed.
func (s *Store) ShuffleRemainingQueue(ctx context.Context) (*models.AuctionState, error) {
	return s.reshuffle(ctx, func(st *models.AuctionState, now time.Time) string {
		return shuffle.ReshuffleSeed(st.ShuffleSeed, now)
	})
}

// ForceReshuffle reorders everyone behind the current student using a
// random seed.
func (s *Store) ForceReshuffle(ctx context.Context) (*models.AuctionState, error) {
	return s.reshuffle(ctx, func(_ *models.AuctionState, now time.Time) string {
		return shuffle.NewSeed(now)
	})
}

func (s *Store) reshuffle(ctx context.Context, seedFn func(*models.AuctionState, time.Time) string) (*models.AuctionState, error) {
	var seed string
	st, err := s.mutate(ctx, func(st *models.AuctionState, now time.Time) (bool, error) {
		if len(st.Queue) <= 2 {
			return false, nil
		}
		seed = seedFn(st, now)
		rest := shuffle.Shuffle(st.Queue[1:], seed)
		st.Queue = append([]string{st.Queue[0]}, rest...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if seed == "" {
		return st, nil
	}

	log.Info().Str("seed", seed).Int("queue", len(st.Queue)).Msg("Queue reshuffled")
	s.record(models.ActionEntry{Type: models.ActionShuffle})
	return st, nil
}

// UndoLastSale reverses the most recent sale and makes that student the
// current pick again. Only one level of undo is kept.
func (s *Store) UndoLastSale(ctx context.Context) (*models.AuctionState, error) {
	var undone models.Student
	st, err := s.mutate(ctx, func(st *models.AuctionState, _ time.Time) (bool, error) {
		if st.LastAction == nil {
			return false, ErrNoActionToUndo
		}
		student, err := soldStudent(st, st.LastAction.StudentID)
		if err != nil {
			return false, err
		}
		undone = student
		refund(st, student)
		student.MarkAvailable()
		st.Students[student.ID] = student
		st.Queue = append([]string{student.ID}, without(st.Queue, student.ID)...)
		st.LastAction = nil
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	price := undone.Price()
	log.Info().Str("student_id", undone.ID).Str("vanguard_id", undone.Buyer()).Int("price", price).Msg("Last sale undone")
	s.record(models.ActionEntry{
		Type:        models.ActionUndo,
		StudentID:   undone.ID,
		StudentName: undone.Name,
		Vanguard:    st.Vanguards[undone.Buyer()].Name,
		Price:       &price,
	})
	return st, nil
}

// SetGlobalFreeze toggles the freeze overlay. Freezing also pauses a
// running timer.
func (s *Store) SetGlobalFreeze(ctx context.Context, frozen bool) (*models.AuctionState, error) {
	st, err := s.mutate(ctx, func(st *models.AuctionState, now time.Time) (bool, error) {
		st.GlobalFreeze = frozen
		if frozen {
			st.Timer, _ = timer.Pause(st.Timer, now)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Bool("frozen", frozen).Msg("Global freeze set")
	return st, nil
}

// BroadcastAnnouncement sets or clears the banner shown on every screen.
func (s *Store) BroadcastAnnouncement(ctx context.Context, text *string) (*models.AuctionState, error) {
	return s.mutate(ctx, func(st *models.AuctionState, _ time.Time) (bool, error) {
		if text == nil {
			st.ActiveAnnouncement = nil
			return true, nil
		}
		t := *text
		st.ActiveAnnouncement = &t
		return true, nil
	})
}

// TriggerSfx fires a sound cue. Every call yields a new, strictly
// increasing timestamp so repeated cues are distinct changes.
func (s *Store) TriggerSfx(ctx context.Context, id string) (*models.AuctionState, error) {
	return s.mutate(ctx, func(st *models.AuctionState, now time.Time) (bool, error) {
		ts := now.UnixMilli()
		if st.SfxTrigger != nil && ts <= st.SfxTrigger.Timestamp {
			ts = st.SfxTrigger.Timestamp + 1
		}
		st.SfxTrigger = &models.SfxTrigger{ID: id, Timestamp: ts}
		return true, nil
	})
}

// StartTimer starts or resumes the bid clock. Already running is a no-op.
func (s *Store) StartTimer(ctx context.Context) (*models.AuctionState, error) {
	return s.mutate(ctx, func(st *models.AuctionState, now time.Time) (bool, error) {
		var changed bool
		st.Timer, changed = timer.Start(st.Timer, now)
		return changed, nil
	})
}

// PauseTimer freezes a running clock. Otherwise it is a no-op.
func (s *Store) PauseTimer(ctx context.Context) (*models.AuctionState, error) {
	return s.mutate(ctx, func(st *models.AuctionState, now time.Time) (bool, error) {
		var changed bool
		st.Timer, changed = timer.Pause(st.Timer, now)
		return changed, nil
	})
}

// ResetTimer restarts the clock from now with the full duration.
func (s *Store) ResetTimer(ctx context.Context) (*models.AuctionState, error) {
	return s.mutate(ctx, func(st *models.AuctionState, now time.Time) (bool, error) {
		st.Timer = timer.Reset(now)
		return true, nil
	})
}
