package wallet

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"ticket-wallet/internal/models"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var timeLayouts = []string{"15:04", "15:04:05"}

// ParseDate parses a YYYY-MM-DD calendar date in loc. Dates that only look
// right, such as 2025-02-30, are rejected.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	if !datePattern.MatchString(date) {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// EventStart combines the event date and time. An empty time means the
// start of the day.
func EventStart(e models.Event, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(e.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	clock := strings.TrimSpace(e.Time)
	if clock == "" {
		return day, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
		}
	}
	return time.Time{}, ErrInvalidTime
}

// FilterByDateRange keeps events whose date falls within [start, end]. Either
// bound may be empty. While any bound is set, events without a usable date
// are left out.
func FilterByDateRange(events []models.Event, start, end string, loc *time.Location) ([]models.Event, error) {
	if start == "" && end == "" {
		return events, nil
	}

	var from, to time.Time
	var err error
	if start != "" {
		if from, err = ParseDate(start, loc); err != nil {
			return nil, ErrInvalidDateFilter
		}
	}
	if end != "" {
		if to, err = ParseDate(end, loc); err != nil {
			return nil, ErrInvalidDateFilter
		}
	}

	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		day, err := ParseDate(e.Date, loc)
		if err != nil {
			continue
		}
		if start != "" && day.Before(from) {
			continue
		}
		if end != "" && day.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// SortForList orders events for the list view: upcoming events soonest
// first, then past events most recent first. Events whose start cannot be
// worked out go last, in their original order.
func SortForList(events []models.Event, now time.Time, loc *time.Location) []models.Event {
	type dated struct {
		event models.Event
		start time.Time
	}
	var upcoming, past []dated
	var unsortable []models.Event

	for _, e := range events {
		start, err := EventStart(e, loc)
		if err != nil {
			unsortable = append(unsortable, e)
			continue
		}
		if !start.Before(now) {
			upcoming = append(upcoming, dated{e, start})
		} else {
			past = append(past, dated{e, start})
		}
	}

	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].start.Before(upcoming[j].start) })
	sort.SliceStable(past, func(i, j int) bool { return past[i].start.After(past[j].start) })

	out := make([]models.Event, 0, len(events))
	for _, d := range upcoming {
		out = append(out, d.event)
	}
	for _, d := range past {
		out = append(out, d.event)
	}
	return append(out, unsortable...)
}

// UntypedLabel names the group of tickets that have no type.
const UntypedLabel = "Untyped"

type TicketGroup struct {
	Type    string          `json:"type"`
	Tickets []models.Ticket `json:"tickets"`
}

// GroupTicketsByType groups an event's tickets by type, in order of first
// appearance.
func GroupTicketsByType(e models.Event) []TicketGroup {
	var groups []TicketGroup
	index := make(map[string]int)
	for _, t := range e.Tickets {
		i, ok := index[t.Type]
		if !ok {
			label := t.Type
			if label == "" {
				label = UntypedLabel
			}
			i = len(groups)
			index[t.Type] = i
			groups = append(groups, TicketGroup{Type: label})
		}
		groups[i].Tickets = append(groups[i].Tickets, t)
	}
	return groups
}
