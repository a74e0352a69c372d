package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/vanguard/go/internal/auction"
	"github.com/mcdev12/vanguard/go/internal/models"
)

type saleRequest struct {
	StudentID  string `json:"studentId"`
	VanguardID string `json:"vanguardId"`
	Price      int    `json:"price"`
}

type updateSaleRequest struct {
	VanguardID string `json:"vanguardId"`
	Price      int    `json:"price"`
}

type freezeRequest struct {
	Frozen bool `json:"frozen"`
}

type announcementRequest struct {
	Text *string `json:"text"`
}

type sfxRequest struct {
	ID string `json:"id"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

func (h *Handler) connected() bool {
	return h.link != nil && h.link.Connected()
}

// respond writes the state view after a successful operation.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, st *models.AuctionState, err error) {
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(st, h.store.Clock().Now(), h.connected()))
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.State(r.Context())
	h.respond(w, r, st, err)
}

func (h *Handler) ConfirmSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.StudentID == "" || req.VanguardID == "" {
		writeError(w, http.StatusBadRequest, "studentId and vanguardId are required")
		return
	}
	st, err := h.store.ConfirmSale(r.Context(), req.StudentID, req.VanguardID, req.Price)
	h.respond(w, r, st, err)
}

func (h *Handler) UpdateSale(w http.ResponseWriter, r *http.Request) {
	var req updateSaleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.VanguardID == "" {
		writeError(w, http.StatusBadRequest, "vanguardId is required")
		return
	}
	st, err := h.store.UpdateSale(r.Context(), chi.URLParam(r, "studentId"), req.VanguardID, req.Price)
	h.respond(w, r, st, err)
}

func (h *Handler) UndoSale(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.UndoSale(r.Context(), chi.URLParam(r, "studentId"))
	h.respond(w, r, st, err)
}

func (h *Handler) UndoLastSale(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.UndoLastSale(r.Context())
	h.respond(w, r, st, err)
}

func (h *Handler) MarkAsUnsold(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.MarkAsUnsold(r.Context(), chi.URLParam(r, "studentId"))
	h.respond(w, r, st, err)
}

func (h *Handler) ReturnFromUnsold(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.ReturnFromUnsold(r.Context(), chi.URLParam(r, "studentId"))
	h.respond(w, r, st, err)
}

func (h *Handler) SkipCurrentStudent(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.SkipCurrentStudent(r.Context())
	h.respond(w, r, st, err)
}

func (h *Handler) SendToEndOfQueue(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.SendToEndOfQueue(r.Context(), chi.URLParam(r, "studentId"))
	h.respond(w, r, st, err)
}

func (h *Handler) ShuffleRemainingQueue(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.ShuffleRemainingQueue(r.Context())
	h.respond(w, r, st, err)
}

func (h *Handler) ForceReshuffle(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.ForceReshuffle(r.Context())
	h.respond(w, r, st, err)
}

func (h *Handler) StartTimer(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.StartTimer(r.Context())
	h.respond(w, r, st, err)
}

func (h *Handler) PauseTimer(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.PauseTimer(r.Context())
	h.respond(w, r, st, err)
}

func (h *Handler) ResetTimer(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.ResetTimer(r.Context())
	h.respond(w, r, st, err)
}

func (h *Handler) SetGlobalFreeze(w http.ResponseWriter, r *http.Request) {
	var req freezeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := h.store.SetGlobalFreeze(r.Context(), req.Frozen)
	h.respond(w, r, st, err)
}

func (h *Handler) BroadcastAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req announcementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := h.store.BroadcastAnnouncement(r.Context(), req.Text)
	h.respond(w, r, st, err)
}

func (h *Handler) TriggerSfx(w http.ResponseWriter, r *http.Request) {
	var req sfxRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	st, err := h.store.TriggerSfx(r.Context(), req.ID)
	h.respond(w, r, st, err)
}

func (h *Handler) ResetAuction(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.ResetAuction(r.Context())
	h.respond(w, r, st, err)
}

// ExportBackup downloads the state. ?compress=true returns a zstd file.
func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	compress, _ := strconv.ParseBool(r.URL.Query().Get("compress"))

	var buf bytes.Buffer
	if err := h.store.ExportBackup(r.Context(), &buf, compress); err != nil {
		writeStoreError(w, r, err)
		return
	}

	contentType := "application/json"
	if compress {
		contentType = "application/zstd"
	}
	name := auction.BackupFilename(h.store.Clock().Now(), compress)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Error().Err(err).Msg("failed to write backup")
	}
}

func (h *Handler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, auction.MaxBackupSize)
	st, err := h.store.ImportBackup(r.Context(), body)
	h.respond(w, r, st, err)
}

func (h *Handler) RecentActions(w http.ResponseWriter, r *http.Request) {
	if h.actions == nil {
		writeJSON(w, http.StatusOK, []models.ActionEntry{})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	entries, err := h.actions.Recent(r.Context(), limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.ActionEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
