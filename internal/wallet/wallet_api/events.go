package wallet_api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticket-wallet/internal/models"
	"ticket-wallet/internal/wallet"
)

type eventResponse struct {
	models.Event
	TicketGroups []wallet.TicketGroup `json:"ticketGroups"`
}

type reminderRequest struct {
	Reminder models.Reminder `json:"reminder"`
}

// ListEvents returns the wallet's events, upcoming first. Optional start and
// end query parameters (YYYY-MM-DD) restrict the date range.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	events, err := sess.List(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	sendJSONResponse(w, http.StatusOK, events)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	e, err := sess.Event(chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	sendJSONResponse(w, http.StatusOK, eventResponse{Event: e, TicketGroups: wallet.GroupTicketsByType(e)})
}

// AddBatch adds tickets to the wallet, grouping them into events. Every
// ticket gets a fresh id; a non-empty date has to be a real YYYY-MM-DD day.
func (h *Handler) AddBatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var payloads []models.NewTicketPayload
	if !decodeJSON(w, r, &payloads) {
		return
	}
	for i := range payloads {
		if err := h.checkDate(payloads[i].EventDetails.Date); err != nil {
			h.writeError(w, err)
			return
		}
		payloads[i].Ticket.ID = wallet.NewTicketID()
	}
	sendJSONResponse(w, http.StatusCreated, sess.AddBatch(payloads))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var patch models.EventPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.Date != nil {
		if err := h.checkDate(*patch.Date); err != nil {
			h.writeError(w, err)
			return
		}
	}
	eventID := chi.URLParam(r, "eventId")
	if err := sess.UpdateEvent(eventID, patch); err != nil {
		h.writeError(w, err)
		return
	}
	e, err := sess.Event(eventID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sendJSONResponse(w, http.StatusOK, e)
}

func (h *Handler) SetReminder(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req reminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := sess.SetReminder(chi.URLParam(r, "eventId"), req.Reminder); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteEvent removes an event and all its tickets. The caller has to
// confirm with ?confirm=true. The response is sent once the deletion is
// stored.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("confirm") != "true" {
		http.Error(w, "deleting an event removes all of its tickets; repeat with confirm=true", http.StatusPreconditionRequired)
		return
	}
	if err := sess.DeleteEvent(chi.URLParam(r, "eventId")); err != nil {
		h.writeError(w, err)
		return
	}
	sess.Flush()
	w.WriteHeader(http.StatusNoContent)
}
