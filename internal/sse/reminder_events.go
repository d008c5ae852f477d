package sse

import (
	"context"
	"sync"

	"ticket-wallet/internal/reminders"
)

// ReminderEmitter fans fired reminders out to the open streams of their
// user.
type ReminderEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan reminders.Notification
}

func NewReminderEmitter() *ReminderEmitter {
	return &ReminderEmitter{clients: make(map[string][]chan reminders.Notification)}
}

// Subscribe registers a stream for userID. The channel is closed once ctx
// is done.
func (e *ReminderEmitter) Subscribe(ctx context.Context, userID string) <-chan reminders.Notification {
	ch := make(chan reminders.Notification, 10)

	e.mu.Lock()
	e.clients[userID] = append(e.clients[userID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(userID, ch)
	}()

	return ch
}

// Emit sends n to every stream of its user. Slow clients miss the event
// rather than block the sender.
func (e *ReminderEmitter) Emit(n reminders.Notification) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[n.UserID] {
		select {
		case ch <- n:
		default:
		}
	}
}

func (e *ReminderEmitter) Subscribers(userID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[userID])
}

func (e *ReminderEmitter) remove(userID string, ch chan reminders.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[userID]
	for i, c := range clients {
		if c == ch {
			e.clients[userID] = append(clients[:i:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[userID]) == 0 {
		delete(e.clients, userID)
	}
}
