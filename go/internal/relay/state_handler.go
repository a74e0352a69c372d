package relay

import (
	"net/http"
	"time"
)

// StateHandler exposes the snapshot each room holds.
type StateHandler struct {
	connectionManager *ConnectionManager
}

func NewStateHandler(cm *ConnectionManager) *StateHandler {
	return &StateHandler{connectionManager: cm}
}

// HandleGetRoomState returns the raw snapshot, or 404 when the room has
// not received one yet.
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	roomName := r.PathValue("room")
	snapshot, updatedAt, ok := h.connectionManager.Snapshot(roomName)
	if !ok {
		http.Error(w, "no snapshot for room", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	w.Header().Set("X-Snapshot-Age", time.Since(updatedAt).Round(time.Millisecond).String())
	w.Write(snapshot)
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/{room}/state", h.HandleGetRoomState)
}
