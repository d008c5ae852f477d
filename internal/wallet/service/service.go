package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"ticket-wallet/internal/extraction"
	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/models"
	"ticket-wallet/internal/reminders"
	"ticket-wallet/internal/wallet"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrImportNotFound  = errors.New("import not found")
	ErrInvalidReminder = errors.New("reminder must be one of none, 1h, 2h, 1d, 2d")
	ErrClosed          = errors.New("wallet service is closed")
	ErrMigration       = errors.New("legacy data could not be migrated, try again later")
)

// Store is the durable home of each user's event list.
type Store interface {
	GetUserEvents(ctx context.Context, userID string) []models.Event
	SaveUserEvents(ctx context.Context, userID string, events []models.Event) error
}

// ReminderSink receives every in-app reminder as it fires.
type ReminderSink interface {
	Emit(n reminders.Notification)
}

type LegacyMigrator interface {
	MigrateFromLegacy(ctx context.Context, userID string) (int, error)
}

// WalletService owns one session per signed-in user. All state changes of a
// user go through that session.
type WalletService struct {
	Store    Store
	Migrator LegacyMigrator
	Core     *wallet.Core
	Importer *extraction.Importer
	Logger   *logger.Logger
	Sink     ReminderSink

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	loads    singleflight.Group
}

func NewWalletService(store Store, migrator LegacyMigrator, core *wallet.Core, importer *extraction.Importer, log *logger.Logger) *WalletService {
	return &WalletService{
		Store:    store,
		Migrator: migrator,
		Core:     core,
		Importer: importer,
		Logger:   log,
		sessions: make(map[string]*Session),
	}
}

// Session returns the live session of a user, loading it on first use.
// Legacy data is migrated before the durable store is read. When the
// migration fails no session is kept, so the next call tries again.
func (s *WalletService) Session(ctx context.Context, userID string) (*Session, error) {
	if sess, err := s.lookup(userID); sess != nil || err != nil {
		return sess, err
	}
	v, err, _ := s.loads.Do(userID, func() (interface{}, error) {
		return s.load(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (s *WalletService) lookup(userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.sessions[userID], nil
}

// load runs outside the service lock; concurrent loads of one user share a
// single call.
func (s *WalletService) load(ctx context.Context, userID string) (*Session, error) {
	if sess, err := s.lookup(userID); sess != nil || err != nil {
		return sess, err
	}

	if s.Migrator != nil {
		n, err := s.Migrator.MigrateFromLegacy(ctx, userID)
		if err != nil {
			s.Logger.Error("WALLET", fmt.Sprintf("legacy migration failed for %s: %v", userID, err))
			return nil, fmt.Errorf("%w: %v", ErrMigration, err)
		}
		if n > 0 {
			s.Logger.LogWallet("MIGRATE", userID, fmt.Sprintf("%d events migrated", n))
		}
	}

	events := s.Store.GetUserEvents(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	sess := newSession(s, userID, events)
	s.sessions[userID] = sess
	s.Logger.LogWallet("LOAD", userID, fmt.Sprintf("session opened with %d events", len(events)))
	return sess, nil
}

// SignOut flushes and forgets a user's session.
func (s *WalletService) SignOut(userID string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()

	if ok {
		sess.close()
		s.Logger.LogWallet("SIGNOUT", userID, "session closed")
	}
}

// ActiveWallets lists the open sessions for the reminder scheduler.
func (s *WalletService) ActiveWallets() []reminders.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]reminders.Wallet, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Close waits for every pending save and refuses new sessions.
func (s *WalletService) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}
