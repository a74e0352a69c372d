package models

import (
	"sort"
	"time"
)

// SchemaVersion tags persisted and replicated auction state. Records with
// any other version are treated as absent.
const SchemaVersion = 1

// TimerState is the stored form of the bid clock. Remaining time is always
// derived from StartedAt, never stored as a live countdown.
type TimerState struct {
	StartedAt       *time.Time `json:"startedAt"`
	Duration        int        `json:"duration"`
	PausedRemaining *int       `json:"pausedRemaining"`
}

// LastActionType names the kind of action captured for single-step undo.
type LastActionType string

const LastActionSale LastActionType = "sale"

// LastAction is the most recent sale, kept for UndoLastSale.
type LastAction struct {
	Type       LastActionType `json:"type"`
	StudentID  string         `json:"studentId"`
	VanguardID string         `json:"vanguardId"`
	Price      int            `json:"price"`
}

// SfxTrigger is a fire-once cue. Timestamp is unix milliseconds and makes
// repeated triggers of the same id distinct.
type SfxTrigger struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// AuctionState is the single root aggregate replicated between stores,
// processes and devices.
type AuctionState struct {
	Version            int                 `json:"version"`
	ShuffleSeed        string              `json:"shuffleSeed"`
	Queue              []string            `json:"queue"`
	Students           map[string]Student  `json:"students"`
	Vanguards          map[string]Vanguard `json:"vanguards"`
	Timer              TimerState          `json:"timer"`
	LastAction         *LastAction         `json:"lastAction"`
	GlobalFreeze       bool                `json:"globalFreeze"`
	ActiveAnnouncement *string             `json:"activeAnnouncement"`
	SfxTrigger         *SfxTrigger         `json:"sfxTrigger"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// Clone returns a deep copy that shares no memory with s.
func (s *AuctionState) Clone() *AuctionState {
	if s == nil {
		return nil
	}
	c := *s
	c.Queue = append([]string(nil), s.Queue...)
	c.Students = make(map[string]Student, len(s.Students))
	for id, st := range s.Students {
		c.Students[id] = st.clone()
	}
	c.Vanguards = make(map[string]Vanguard, len(s.Vanguards))
	for id, v := range s.Vanguards {
		c.Vanguards[id] = v.clone()
	}
	if s.Timer.StartedAt != nil {
		at := *s.Timer.StartedAt
		c.Timer.StartedAt = &at
	}
	if s.Timer.PausedRemaining != nil {
		r := *s.Timer.PausedRemaining
		c.Timer.PausedRemaining = &r
	}
	if s.LastAction != nil {
		la := *s.LastAction
		c.LastAction = &la
	}
	if s.ActiveAnnouncement != nil {
		a := *s.ActiveAnnouncement
		c.ActiveAnnouncement = &a
	}
	if s.SfxTrigger != nil {
		sfx := *s.SfxTrigger
		c.SfxTrigger = &sfx
	}
	return &c
}

// CurrentStudent returns the head of the queue, the only student that
// may be sold or passed from the stage.
func (s *AuctionState) CurrentStudent() (Student, bool) {
	if len(s.Queue) == 0 {
		return Student{}, false
	}
	st, ok := s.Students[s.Queue[0]]
	return st, ok
}

// NextStudent returns the student queued after the current one.
func (s *AuctionState) NextStudent() (Student, bool) {
	if len(s.Queue) < 2 {
		return Student{}, false
	}
	st, ok := s.Students[s.Queue[1]]
	return st, ok
}

// AvailableStudents lists queued students in queue order.
func (s *AuctionState) AvailableStudents() []Student {
	out := make([]Student, 0, len(s.Queue))
	for _, id := range s.Queue {
		if st, ok := s.Students[id]; ok {
			out = append(out, st)
		}
	}
	return out
}

// AllStudents lists every student ordered by id.
func (s *AuctionState) AllStudents() []Student {
	out := make([]Student, 0, len(s.Students))
	for _, st := range s.Students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnsoldStudents lists students passed without a bid, ordered by id.
func (s *AuctionState) UnsoldStudents() []Student {
	var out []Student
	for _, st := range s.AllStudents() {
		if st.Status == StudentStatusUnsold {
			out = append(out, st)
		}
	}
	return out
}

// VanguardList lists vanguards ordered by id.
func (s *AuctionState) VanguardList() []Vanguard {
	out := make([]Vanguard, 0, len(s.Vanguards))
	for _, v := range s.Vanguards {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// QueueIndex returns the position of id in the queue, or -1.
func (s *AuctionState) QueueIndex(id string) int {
	for i, q := range s.Queue {
		if q == id {
			return i
		}
	}
	return -1
}
