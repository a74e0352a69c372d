package models

import "time"

// ActionType names an entry in the operator action log.
type ActionType string

const (
	ActionSale      ActionType = "SALE"
	ActionUnsold    ActionType = "UNSOLD"
	ActionSkip      ActionType = "SKIP"
	ActionUndo      ActionType = "UNDO"
	ActionReturn    ActionType = "RETURN"
	ActionUpdate    ActionType = "UPDATE"
	ActionSendToEnd ActionType = "SEND_TO_END"
	ActionShuffle   ActionType = "SHUFFLE"
	ActionReset     ActionType = "RESET"
	ActionImport    ActionType = "IMPORT"
)

// ActionEntry is one row of the operator action log.
type ActionEntry struct {
	ID          int64      `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Type        ActionType `json:"type"`
	StudentID   string     `json:"studentId,omitempty"`
	StudentName string     `json:"studentName,omitempty"`
	Vanguard    string     `json:"vanguard,omitempty"`
	Price       *int       `json:"price,omitempty"`
}

// SaleNotification is the body delivered to the external sale sink.
type SaleNotification struct {
	StudentID    string `json:"studentId"`
	Name         string `json:"name"`
	Price        int    `json:"price"`
	VanguardName string `json:"vanguardName"`
}
