package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ticket-wallet/internal/extraction"
	"ticket-wallet/internal/models"
	"ticket-wallet/internal/reminders"
	"ticket-wallet/internal/wallet"
)

// Session is the in-memory event list of one user. Every change is applied
// here first and then written to the store in the background; readers never
// wait for the write.
type Session struct {
	svc    *WalletService
	userID string

	mu        sync.Mutex
	events    []models.Event
	pending   []reminders.Notification
	imports   map[string]*extraction.Batch
	closeOnce sync.Once

	dirty chan struct{}
	flush chan chan struct{}
	quit  chan struct{}
	done  chan struct{}
}

func newSession(svc *WalletService, userID string, events []models.Event) *Session {
	sess := &Session{
		svc:     svc,
		userID:  userID,
		events:  events,
		imports: make(map[string]*extraction.Batch),
		dirty:   make(chan struct{}, 1),
		flush:   make(chan chan struct{}),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go sess.persistLoop()
	return sess
}

func (s *Session) UserID() string {
	return s.userID
}

// Events returns the current event list. The returned slice must not be
// modified.
func (s *Session) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// List returns the events within the optional date range, upcoming first.
func (s *Session) List(start, end string) ([]models.Event, error) {
	core := s.svc.Core
	filtered, err := wallet.FilterByDateRange(s.Events(), start, end, core.Location)
	if err != nil {
		return nil, err
	}
	return wallet.SortForList(filtered, core.Clock.Now(), core.Location), nil
}

func (s *Session) Event(eventID string) (models.Event, error) {
	e, ok := wallet.FindEvent(s.Events(), eventID)
	if !ok {
		return models.Event{}, ErrEventNotFound
	}
	return e, nil
}

func (s *Session) AddBatch(payloads []models.NewTicketPayload) []models.Event {
	return s.apply("ADD_BATCH", func(events []models.Event) ([]models.Event, error) {
		return s.svc.Core.AddBatch(events, payloads), nil
	})
}

func (s *Session) DeleteTicket(eventID, ticketID string) error {
	return s.mutate("DELETE_TICKET", func(events []models.Event) ([]models.Event, error) {
		if err := requireTicket(events, eventID, ticketID); err != nil {
			return nil, err
		}
		return wallet.DeleteTicket(events, eventID, ticketID), nil
	})
}

func (s *Session) SetReminder(eventID string, reminder models.Reminder) error {
	if !reminder.Valid() {
		return ErrInvalidReminder
	}
	return s.mutate("SET_REMINDER", func(events []models.Event) ([]models.Event, error) {
		if err := requireEvent(events, eventID); err != nil {
			return nil, err
		}
		return wallet.SetReminder(events, eventID, reminder), nil
	})
}

func (s *Session) UpdateEvent(eventID string, patch models.EventPatch) error {
	return s.mutate("UPDATE_EVENT", func(events []models.Event) ([]models.Event, error) {
		if err := requireEvent(events, eventID); err != nil {
			return nil, err
		}
		return wallet.UpdateEvent(events, eventID, patch), nil
	})
}

func (s *Session) UpdateTicket(eventID string, ticket models.Ticket) error {
	return s.mutate("UPDATE_TICKET", func(events []models.Event) ([]models.Event, error) {
		if err := requireTicket(events, eventID, ticket.ID); err != nil {
			return nil, err
		}
		return wallet.UpdateTicket(events, eventID, ticket), nil
	})
}

func (s *Session) MoveTicket(sourceEventID, ticketID string, dest models.MoveDestination) (wallet.MoveResult, error) {
	var result wallet.MoveResult
	err := s.mutate("MOVE_TICKET", func(events []models.Event) ([]models.Event, error) {
		if err := requireTicket(events, sourceEventID, ticketID); err != nil {
			return nil, err
		}
		if dest.EventID != "" {
			if err := requireEvent(events, dest.EventID); err != nil {
				return nil, err
			}
		}
		result = s.svc.Core.MoveTicket(events, sourceEventID, ticketID, dest)
		return result.Events, nil
	})
	return result, err
}

func (s *Session) AttemptMerge(sourceID, targetID string) (*wallet.MergeProposal, error) {
	events := s.Events()
	if err := requireEvent(events, sourceID); err != nil {
		return nil, err
	}
	if err := requireEvent(events, targetID); err != nil {
		return nil, err
	}
	return wallet.AttemptMerge(events, sourceID, targetID)
}

func (s *Session) ConfirmMerge(sourceID, targetID, name string) error {
	return s.mutate("CONFIRM_MERGE", func(events []models.Event) ([]models.Event, error) {
		return wallet.ConfirmMerge(events, sourceID, targetID, name)
	})
}

func (s *Session) DeleteEvent(eventID string) error {
	return s.mutate("DELETE_EVENT", func(events []models.Event) ([]models.Event, error) {
		if err := requireEvent(events, eventID); err != nil {
			return nil, err
		}
		return wallet.DeleteEvent(events, eventID), nil
	})
}

// PushReminder queues an in-app reminder. A second reminder for the same
// event replaces the first.
func (s *Session) PushReminder(n reminders.Notification) {
	n.UserID = s.userID

	s.mu.Lock()
	replaced := false
	for i, p := range s.pending {
		if p.EventID == n.EventID {
			s.pending[i] = n
			replaced = true
			break
		}
	}
	if !replaced {
		s.pending = append(s.pending, n)
	}
	s.mu.Unlock()

	if s.svc.Sink != nil {
		s.svc.Sink.Emit(n)
	}
}

// PendingReminders returns the in-app reminders not yet dismissed.
func (s *Session) PendingReminders() []reminders.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]reminders.Notification, len(s.pending))
	copy(out, s.pending)
	return out
}

// DismissReminder drops the in-app reminder of an event and turns the
// event's reminder off.
func (s *Session) DismissReminder(eventID string) error {
	s.mu.Lock()
	found := false
	for i, p := range s.pending {
		if p.EventID == eventID {
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	err := s.mutate("DISMISS_REMINDER", func(events []models.Event) ([]models.Event, error) {
		if err := requireEvent(events, eventID); err != nil {
			return nil, err
		}
		return wallet.SetReminder(events, eventID, models.ReminderNone), nil
	})
	if errors.Is(err, ErrEventNotFound) && found {
		return nil
	}
	return err
}

// Import extracts a set of uploaded files and keeps the batch for review.
func (s *Session) Import(ctx context.Context, uploads []extraction.Upload) *extraction.Batch {
	im := s.svc.Importer
	batch := im.NewBatch(uploads)

	s.mu.Lock()
	s.imports[batch.ID] = batch
	s.mu.Unlock()

	s.svc.Logger.LogImport(batch.ID, fmt.Sprintf("%d files uploaded by %s", len(uploads), s.userID))
	im.Process(ctx, batch)
	return batch
}

func (s *Session) ImportBatch(importID string) (*extraction.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.imports[importID]
	if !ok {
		return nil, ErrImportNotFound
	}
	return b, nil
}

func (s *Session) RetryImportItem(ctx context.Context, importID, itemID string) error {
	b, err := s.ImportBatch(importID)
	if err != nil {
		return err
	}
	return s.svc.Importer.Retry(ctx, b, itemID)
}

func (s *Session) CorrectImportItem(importID, itemID string, patch extraction.FieldsPatch) error {
	b, err := s.ImportBatch(importID)
	if err != nil {
		return err
	}
	return b.Correct(itemID, patch, s.svc.Core.Location)
}

func (s *Session) RemoveImportItem(importID, itemID string) error {
	b, err := s.ImportBatch(importID)
	if err != nil {
		return err
	}
	if err := b.Remove(itemID); err != nil {
		return err
	}
	s.dropEmptyImport(b)
	return nil
}

// CommitImport adds the reviewed tickets of a batch to the wallet and
// returns how many were added. Items that still need attention stay in the
// batch.
func (s *Session) CommitImport(importID string) (int, error) {
	b, err := s.ImportBatch(importID)
	if err != nil {
		return 0, err
	}
	payloads := b.TakeReady(wallet.NewTicketID)
	if len(payloads) > 0 {
		s.AddBatch(payloads)
	}
	s.dropEmptyImport(b)
	s.svc.Logger.LogImport(importID, fmt.Sprintf("%d tickets committed, %d items left", len(payloads), b.Len()))
	return len(payloads), nil
}

func (s *Session) dropEmptyImport(b *extraction.Batch) {
	if b.Len() > 0 {
		return
	}
	s.mu.Lock()
	delete(s.imports, b.ID)
	s.mu.Unlock()
}

// Flush blocks until every change made so far has been handed to the store.
func (s *Session) Flush() {
	ack := make(chan struct{})
	select {
	case s.flush <- ack:
		<-ack
	case <-s.done:
	}
}

func (s *Session) mutate(action string, fn func([]models.Event) ([]models.Event, error)) error {
	var err error
	s.apply(action, func(events []models.Event) ([]models.Event, error) {
		var out []models.Event
		out, err = fn(events)
		return out, err
	})
	return err
}

// apply commits the result of fn to memory and schedules a save. The
// in-memory list changes even if the later save fails.
func (s *Session) apply(action string, fn func([]models.Event) ([]models.Event, error)) []models.Event {
	s.mu.Lock()
	next, err := fn(s.events)
	if err != nil {
		events := s.events
		s.mu.Unlock()
		return events
	}
	s.events = next
	s.mu.Unlock()

	s.svc.Logger.LogWallet(action, s.userID, fmt.Sprintf("%d events, %d tickets", len(next), wallet.CountTickets(next)))
	s.schedulePersist()
	return next
}

func (s *Session) schedulePersist() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// persistLoop writes the latest event list whenever it changed. Changes
// that arrive while a save is running collapse into one further save.
func (s *Session) persistLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.dirty:
			s.save()
		case ack := <-s.flush:
			s.saveIfDirty()
			close(ack)
		case <-s.quit:
			s.saveIfDirty()
			return
		}
	}
}

func (s *Session) saveIfDirty() {
	select {
	case <-s.dirty:
		s.save()
	default:
	}
}

func (s *Session) save() {
	events := s.Events()
	if err := s.svc.Store.SaveUserEvents(context.Background(), s.userID, events); err != nil {
		s.svc.Logger.Error("WALLET", fmt.Sprintf("failed to persist events for %s: %v", s.userID, err))
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func requireEvent(events []models.Event, eventID string) error {
	if _, ok := wallet.FindEvent(events, eventID); !ok {
		return ErrEventNotFound
	}
	return nil
}

func requireTicket(events []models.Event, eventID, ticketID string) error {
	e, ok := wallet.FindEvent(events, eventID)
	if !ok {
		return ErrEventNotFound
	}
	for _, t := range e.Tickets {
		if t.ID == ticketID {
			return nil
		}
	}
	return ErrTicketNotFound
}
