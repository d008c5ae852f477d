package wallet_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ticket-wallet/internal/auth"
	"ticket-wallet/internal/extraction"
	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/sse"
	"ticket-wallet/internal/tickets/qr"
	"ticket-wallet/internal/wallet"
	"ticket-wallet/internal/wallet/service"
)

const defaultMaxUploadBytes = 32 << 20

// Handler serves the wallet of the signed-in user.
type Handler struct {
	Service        *service.WalletService
	QR             *qr.Generator
	Emitter        *sse.ReminderEmitter
	Logger         *logger.Logger
	MaxUploadBytes int64
}

func NewHandler(svc *service.WalletService, emitter *sse.ReminderEmitter, log *logger.Logger) *Handler {
	return &Handler{
		Service:        svc,
		QR:             qr.NewGenerator(),
		Emitter:        emitter,
		Logger:         log,
		MaxUploadBytes: defaultMaxUploadBytes,
	}
}

// RegisterRoutes registers the wallet routes on a chi router. The routes
// expect auth.Middleware to have run.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/wallet", func(r chi.Router) {
		r.Use(h.logRequests)

		r.Get("/events", h.ListEvents)
		r.Post("/events/batch", h.AddBatch)
		r.Get("/events/{eventId}", h.GetEvent)
		r.Patch("/events/{eventId}", h.UpdateEvent)
		r.Delete("/events/{eventId}", h.DeleteEvent)
		r.Put("/events/{eventId}/reminder", h.SetReminder)

		r.Put("/events/{eventId}/tickets/{ticketId}", h.UpdateTicket)
		r.Delete("/events/{eventId}/tickets/{ticketId}", h.DeleteTicket)
		r.Post("/events/{eventId}/tickets/{ticketId}/move", h.MoveTicket)
		r.Get("/events/{eventId}/tickets/{ticketId}/qr", h.TicketQR)

		r.Post("/merge/attempt", h.AttemptMerge)
		r.Post("/merge/confirm", h.ConfirmMerge)

		r.Get("/reminders", h.ListReminders)
		r.Get("/reminders/stream", h.StreamReminders)
		r.Post("/reminders/{eventId}/dismiss", h.DismissReminder)

		r.Post("/imports", h.CreateImport)
		r.Get("/imports/{importId}", h.GetImport)
		r.Patch("/imports/{importId}/items/{itemId}", h.CorrectImportItem)
		r.Post("/imports/{importId}/items/{itemId}/retry", h.RetryImportItem)
		r.Delete("/imports/{importId}/items/{itemId}", h.RemoveImportItem)
		r.Post("/imports/{importId}/commit", h.CommitImport)

		r.Post("/signout", h.SignOut)
	})
}

// session resolves the wallet session of the request's user and writes the
// error response when there is none.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	sess, err := h.Service.Session(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return sess, true
}

// SignOut stores the user's wallet and releases the session. Reminders of a
// signed-out user stop firing until the next request.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	h.Service.SignOut(user.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", err.Error())
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrEventNotFound),
		errors.Is(err, service.ErrTicketNotFound),
		errors.Is(err, service.ErrImportNotFound),
		errors.Is(err, extraction.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidReminder),
		errors.Is(err, wallet.ErrInvalidDateFilter),
		errors.Is(err, wallet.ErrInvalidDate),
		errors.Is(err, extraction.ErrDateNeedsAttention),
		errors.Is(err, qr.ErrNoCode):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrMergeDateMismatch),
		errors.Is(err, extraction.ErrItemNotRetryable),
		errors.Is(err, extraction.ErrItemNotEditable):
		return http.StatusConflict
	case errors.Is(err, service.ErrClosed),
		errors.Is(err, service.ErrMigration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// checkDate accepts an empty date or a real YYYY-MM-DD calendar day.
func (h *Handler) checkDate(date string) error {
	if date == "" {
		return nil
	}
	if _, err := wallet.ParseDate(date, h.Service.Core.Location); err != nil {
		return fmt.Errorf("%w %q, expected YYYY-MM-DD", err, date)
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the connection.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprint(rec.status), time.Since(start).String())
	})
}
