package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-wallet/internal/clock"
	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/models"
	"ticket-wallet/internal/wallet"
)

// FiringWindow is how long after its reminder time an event can still fire.
const FiringWindow = time.Minute

// FiredRecord is the per-user set of events whose reminder was dispatched.
type FiredRecord interface {
	FiredEvents(ctx context.Context, userID string) (map[string]struct{}, error)
	MarkFired(ctx context.Context, userID, eventID string) (bool, error)
}

// Wallet is one user's live event state as seen by the scheduler.
type Wallet interface {
	UserID() string
	Events() []models.Event
	PushReminder(n Notification)
}

type WalletSource interface {
	ActiveWallets() []Wallet
}

type Scheduler struct {
	Clock    clock.Clock
	Location *time.Location
	Interval time.Duration
	Fired    FiredRecord
	Notifier Notifier
	Logger   *logger.Logger
}

// Due returns a notification for every event whose reminder window contains
// now and that has not fired yet. Events with a date or time that cannot be
// parsed are skipped.
func Due(events []models.Event, fired map[string]struct{}, now time.Time, loc *time.Location) []Notification {
	var due []Notification
	for _, e := range events {
		offset, ok := e.Reminder.Offset()
		if !ok {
			continue
		}
		if _, done := fired[e.ID]; done {
			continue
		}
		start, err := wallet.EventStart(e, loc)
		if err != nil {
			continue
		}
		at := start.Add(-offset)
		if now.Before(at) || !now.Before(at.Add(FiringWindow)) {
			continue
		}
		due = append(due, Notification{
			EventID:   e.ID,
			EventName: e.Name,
			Location:  e.Location,
			Reminder:  e.Reminder,
			StartsAt:  start,
			FiredAt:   now,
		})
	}
	return due
}

// Scan fires the due reminders of one wallet and returns how many fired.
// An event is recorded as fired before anything is delivered, so a window
// can never fire twice.
func (s *Scheduler) Scan(ctx context.Context, w Wallet) int {
	userID := w.UserID()
	fired, err := s.Fired.FiredEvents(ctx, userID)
	if err != nil {
		s.Logger.Error("REMINDER", fmt.Sprintf("failed to read fired record for %s: %v", userID, err))
		return 0
	}

	count := 0
	for _, n := range Due(w.Events(), fired, s.Clock.Now(), s.Location) {
		n.UserID = userID
		added, err := s.Fired.MarkFired(ctx, userID, n.EventID)
		if err != nil {
			s.Logger.Error("REMINDER", fmt.Sprintf("failed to record reminder %s/%s: %v", userID, n.EventID, err))
			continue
		}
		if !added {
			continue
		}

		if s.Notifier != nil {
			if err := s.Notifier.Notify(ctx, n); err != nil {
				if errors.Is(err, ErrNotificationsUnavailable) {
					s.Logger.Debug("REMINDER", fmt.Sprintf("notification suppressed for %s/%s", userID, n.EventID))
				} else {
					s.Logger.Warn("REMINDER", fmt.Sprintf("notification failed for %s/%s: %v", userID, n.EventID, err))
				}
			}
		}
		w.PushReminder(n)
		s.Logger.LogReminder(userID, n.EventID, "reminder fired")
		count++
	}
	return count
}

// Tick scans every active wallet once.
func (s *Scheduler) Tick(ctx context.Context, src WalletSource) int {
	total := 0
	for _, w := range src.ActiveWallets() {
		total += s.Scan(ctx, w)
	}
	return total
}

// Run ticks at the configured interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, src WalletSource) {
	interval := s.Interval
	if interval <= 0 || interval > FiringWindow {
		interval = FiringWindow
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Logger.Info("REMINDER", fmt.Sprintf("Reminder scheduler started (every %s)", interval))
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("REMINDER", "Reminder scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, src)
		}
	}
}
