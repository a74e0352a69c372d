// Package api is the JSON HTTP surface screens use to read and drive an
// agent's auction store.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mcdev12/vanguard/go/internal/auction"
	"github.com/mcdev12/vanguard/go/internal/models"
)

// ActionLog serves the recent action history.
type ActionLog interface {
	Recent(ctx context.Context, limit int) ([]models.ActionEntry, error)
}

// LinkStatus reports relay connectivity.
type LinkStatus interface {
	Connected() bool
}

type Handler struct {
	store   *auction.Store
	actions ActionLog
	link    LinkStatus
}

// NewHandler builds the API. actions and link may be nil.
func NewHandler(store *auction.Store, actions ActionLog, link LinkStatus) *Handler {
	return &Handler{store: store, actions: actions, link: link}
}

// Routes mounts every endpoint on a chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.GetState)

		r.Post("/sales", h.ConfirmSale)
		r.Post("/sales/undo-last", h.UndoLastSale)
		r.Put("/sales/{studentId}", h.UpdateSale)
		r.Delete("/sales/{studentId}", h.UndoSale)

		r.Post("/students/{studentId}/unsold", h.MarkAsUnsold)
		r.Post("/students/{studentId}/return", h.ReturnFromUnsold)

		r.Post("/queue/skip", h.SkipCurrentStudent)
		r.Post("/queue/shuffle", h.ShuffleRemainingQueue)
		r.Post("/queue/force-shuffle", h.ForceReshuffle)
		r.Post("/queue/{studentId}/send-to-end", h.SendToEndOfQueue)

		r.Post("/timer/start", h.StartTimer)
		r.Post("/timer/pause", h.PauseTimer)
		r.Post("/timer/reset", h.ResetTimer)

		r.Put("/freeze", h.SetGlobalFreeze)
		r.Put("/announcement", h.BroadcastAnnouncement)
		r.Post("/sfx", h.TriggerSfx)
		r.Post("/reset", h.ResetAuction)

		r.Get("/backup", h.ExportBackup)
		r.Post("/backup", h.ImportBackup)

		r.Get("/actions", h.RecentActions)
	})
	return r
}
