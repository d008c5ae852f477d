package models

import "time"

type Reminder string

const (
	ReminderNone     Reminder = "none"
	ReminderOneHour  Reminder = "1h"
	ReminderTwoHours Reminder = "2h"
	ReminderOneDay   Reminder = "1d"
	ReminderTwoDays  Reminder = "2d"
)

var reminderOffsets = map[Reminder]time.Duration{
	ReminderOneHour:  60 * time.Minute,
	ReminderTwoHours: 120 * time.Minute,
	ReminderOneDay:   24 * 60 * time.Minute,
	ReminderTwoDays:  48 * 60 * time.Minute,
}

// Offset reports how long before the event start the reminder fires. The
// second value is false for "none" and for unknown settings.
func (r Reminder) Offset() (time.Duration, bool) {
	d, ok := reminderOffsets[r]
	return d, ok
}

// Valid reports whether r is one of the known settings. The empty value is
// accepted and treated as none.
func (r Reminder) Valid() bool {
	if r == "" || r == ReminderNone {
		return true
	}
	_, ok := reminderOffsets[r]
	return ok
}

// Active reports whether the reminder is set to anything other than none.
func (r Reminder) Active() bool {
	_, ok := reminderOffsets[r]
	return ok
}
