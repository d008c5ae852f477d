package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/models"
)

// Record is one key of the durable key-value store. The event list of a
// user lives in a single record, rewritten as a whole on every save.
type Record struct {
	bun.BaseModel `bun:"table:wallet_records"`

	Key       string    `bun:"record_key,pk"`
	Data      string    `bun:"data,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// UserEventsKey is the store key holding a user's event list.
func UserEventsKey(userID string) string {
	return "events_" + userID
}

type DB struct {
	Bun    *bun.DB
	Logger *logger.Logger
}

// Open connects to postgres for postgres:// DSNs and to sqlite otherwise.
func Open(dsn string) (*bun.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// sqlite allows a single writer; an in-memory database also exists
	// only on the connection that created it.
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// CreateSchema creates the records table if it does not exist yet.
func (d *DB) CreateSchema(ctx context.Context) error {
	_, err := d.Bun.NewCreateTable().
		Model((*Record)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// SaveUserEvents replaces the stored event list of a user.
func (d *DB) SaveUserEvents(ctx context.Context, userID string, events []models.Event) error {
	if events == nil {
		events = []models.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}

	rec := Record{
		Key:       UserEventsKey(userID),
		Data:      string(data),
		UpdatedAt: time.Now().UTC(),
	}
	_, err = d.Bun.NewInsert().
		Model(&rec).
		On("CONFLICT (record_key) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save events for %s: %w", userID, err)
	}
	return nil
}

// GetUserEvents returns the stored event list of a user. A missing record or
// any read error gives an empty list; errors are logged, not returned.
func (d *DB) GetUserEvents(ctx context.Context, userID string) []models.Event {
	key := UserEventsKey(userID)

	var rec Record
	err := d.Bun.NewSelect().
		Model(&rec).
		Where("record_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err != sql.ErrNoRows {
			d.logError("GET", key, fmt.Sprintf("read failed: %v", err))
		}
		return []models.Event{}
	}

	var events []models.Event
	if err := json.Unmarshal([]byte(rec.Data), &events); err != nil {
		d.logError("GET", key, fmt.Sprintf("stored data is not an event list: %v", err))
		return []models.Event{}
	}
	if events == nil {
		events = []models.Event{}
	}
	return events
}

func (d *DB) logError(op, key, message string) {
	if d.Logger != nil {
		d.Logger.Error("STORE", fmt.Sprintf("[%s] %s - %s", op, key, message))
	}
}
