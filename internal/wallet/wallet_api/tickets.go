package wallet_api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticket-wallet/internal/models"
)

type moveRequest struct {
	Destination    models.MoveDestination `json:"destination"`
	ViewingEventID string                 `json:"viewingEventId,omitempty"`
}

type moveResponse struct {
	SourceRemoved  bool   `json:"sourceRemoved"`
	NewEventID     string `json:"newEventId,omitempty"`
	NavigateToList bool   `json:"navigateToList"`
}

type mergeRequest struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
	Name     string `json:"name,omitempty"`
}

func (h *Handler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var ticket models.Ticket
	if !decodeJSON(w, r, &ticket) {
		return
	}
	ticket.ID = chi.URLParam(r, "ticketId")
	if err := sess.UpdateTicket(chi.URLParam(r, "eventId"), ticket); err != nil {
		h.writeError(w, err)
		return
	}
	sendJSONResponse(w, http.StatusOK, ticket)
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.DeleteTicket(chi.URLParam(r, "eventId"), chi.URLParam(r, "ticketId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveTicket moves a ticket to another event or to a new one. The response
// tells a client showing viewingEventId whether that event is gone.
func (h *Handler) MoveTicket(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if ne := req.Destination.NewEvent; ne != nil {
		if err := h.checkDate(ne.Date); err != nil {
			h.writeError(w, err)
			return
		}
	}
	result, err := sess.MoveTicket(chi.URLParam(r, "eventId"), chi.URLParam(r, "ticketId"), req.Destination)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !result.Moved {
		http.Error(w, "destination must be another event or new event details", http.StatusBadRequest)
		return
	}
	sendJSONResponse(w, http.StatusOK, moveResponse{
		SourceRemoved:  result.SourceRemoved,
		NewEventID:     result.NewEventID,
		NavigateToList: result.NavigateToList(req.ViewingEventID),
	})
}

// TicketQR renders the ticket's code as a PNG.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	e, err := sess.Event(chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	ticketID := chi.URLParam(r, "ticketId")
	for _, t := range e.Tickets {
		if t.ID != ticketID {
			continue
		}
		png, err := h.QR.PNG(t)
		if err != nil {
			h.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
		return
	}
	http.Error(w, "ticket not found", http.StatusNotFound)
}

// AttemptMerge checks that two events can be merged and proposes a name for
// the result.
func (h *Handler) AttemptMerge(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req mergeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	proposal, err := sess.AttemptMerge(req.SourceID, req.TargetID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if proposal == nil {
		http.Error(w, "an event cannot be merged into itself", http.StatusBadRequest)
		return
	}
	sendJSONResponse(w, http.StatusOK, proposal)
}

func (h *Handler) ConfirmMerge(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req mergeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := sess.ConfirmMerge(req.SourceID, req.TargetID, req.Name); err != nil {
		h.writeError(w, err)
		return
	}
	e, err := sess.Event(req.TargetID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sendJSONResponse(w, http.StatusOK, e)
}

func (h *Handler) ListReminders(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sendJSONResponse(w, http.StatusOK, sess.PendingReminders())
}

func (h *Handler) DismissReminder(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.DismissReminder(chi.URLParam(r, "eventId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
