package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/models"
)

// LegacySource is the old flat storage that kept the event list as a JSON
// string under the same per-user key.
type LegacySource interface {
	LoadLegacyEvents(ctx context.Context, userID string) (string, bool, error)
	RemoveLegacyEvents(ctx context.Context, userID string) error
}

type EventSaver interface {
	SaveUserEvents(ctx context.Context, userID string, events []models.Event) error
}

type Migrator struct {
	Legacy LegacySource
	Store  EventSaver
	Logger *logger.Logger
}

func NewMigrator(legacy LegacySource, store EventSaver, log *logger.Logger) *Migrator {
	return &Migrator{Legacy: legacy, Store: store, Logger: log}
}

// MigrateFromLegacy copies a non-empty legacy event list into the durable
// store and then erases the legacy copy. It returns the number of events
// moved. Once the legacy copy is gone further calls do nothing.
func (m *Migrator) MigrateFromLegacy(ctx context.Context, userID string) (int, error) {
	raw, found, err := m.Legacy.LoadLegacyEvents(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to read legacy events: %w", err)
	}
	if !found || raw == "" {
		return 0, nil
	}

	var events []models.Event
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return 0, fmt.Errorf("legacy events for %s are not an event list: %w", userID, err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := m.Store.SaveUserEvents(ctx, userID, events); err != nil {
		return 0, fmt.Errorf("failed to save migrated events: %w", err)
	}
	if err := m.Legacy.RemoveLegacyEvents(ctx, userID); err != nil {
		return len(events), fmt.Errorf("migrated events but failed to erase legacy copy: %w", err)
	}

	m.Logger.LogStore("MIGRATE", UserEventsKey(userID), fmt.Sprintf("moved %d events from legacy storage", len(events)))
	return len(events), nil
}
