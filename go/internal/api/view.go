package api

import (
	"time"

	"github.com/mcdev12/vanguard/go/internal/models"
	"github.com/mcdev12/vanguard/go/internal/timer"
)

// StateView is the state plus everything a screen derives from it.
type StateView struct {
	*models.AuctionState

	Current           *models.Student   `json:"current"`
	Next              *models.Student   `json:"next"`
	TimeRemaining     int               `json:"timeRemaining"`
	TimerRunning      bool              `json:"timerRunning"`
	TimerExpired      bool              `json:"timerExpired"`
	Connected         bool              `json:"connected"`
	AvailableStudents []models.Student  `json:"availableStudents"`
	UnsoldStudents    []models.Student  `json:"unsoldStudents"`
	VanguardList      []models.Vanguard `json:"vanguardList"`
}

func newStateView(st *models.AuctionState, now time.Time, connected bool) StateView {
	v := StateView{
		AuctionState:      st,
		TimeRemaining:     timer.Remaining(st.Timer, now),
		TimerRunning:      timer.Running(st.Timer),
		TimerExpired:      timer.Expired(st.Timer, now),
		Connected:         connected,
		AvailableStudents: st.AvailableStudents(),
		UnsoldStudents:    st.UnsoldStudents(),
		VanguardList:      st.VanguardList(),
	}
	if v.UnsoldStudents == nil {
		v.UnsoldStudents = []models.Student{}
	}
	if cur, ok := st.CurrentStudent(); ok {
		v.Current = &cur
	}
	if next, ok := st.NextStudent(); ok {
		v.Next = &next
	}
	return v
}
