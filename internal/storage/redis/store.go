package redis

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Store keeps the lightweight per-user data that does not belong in the
// durable event store: the legacy flat event list and the fired-reminder
// record.
type Store struct {
	Client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{Client: client}
}

func LegacyEventsKey(userID string) string {
	return "events_" + userID
}

func FiredRemindersKey(userID string) string {
	return "sentReminders_" + userID
}

// LoadLegacyEvents returns the raw legacy event list and whether it exists.
func (s *Store) LoadLegacyEvents(ctx context.Context, userID string) (string, bool, error) {
	val, err := s.Client.Get(ctx, LegacyEventsKey(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *Store) RemoveLegacyEvents(ctx context.Context, userID string) error {
	return s.Client.Del(ctx, LegacyEventsKey(userID)).Err()
}

// MarkFired records that the reminder for eventID was dispatched. It reports
// false when the event was already recorded, so concurrent callers cannot
// both fire.
func (s *Store) MarkFired(ctx context.Context, userID, eventID string) (bool, error) {
	added, err := s.Client.SAdd(ctx, FiredRemindersKey(userID), eventID).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

// FiredEvents returns the ids of all events whose reminder was dispatched.
func (s *Store) FiredEvents(ctx context.Context, userID string) (map[string]struct{}, error) {
	ids, err := s.Client.SMembers(ctx, FiredRemindersKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	fired := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fired[id] = struct{}{}
	}
	return fired, nil
}
