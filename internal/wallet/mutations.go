package wallet

import (
	"strings"

	"ticket-wallet/internal/models"
)

// The operations below never modify their input. They return a new event
// list, or the input itself when there is nothing to do.

// DeleteTicket removes a ticket from an event. An event left without
// tickets is dropped.
func DeleteTicket(events []models.Event, eventID, ticketID string) []models.Event {
	ei := indexOfEvent(events, eventID)
	if ei < 0 {
		return events
	}
	ti := indexOfTicket(events[ei].Tickets, ticketID)
	if ti < 0 {
		return events
	}

	remaining := removeTicket(events[ei].Tickets, ti)
	if len(remaining) == 0 {
		return removeEvent(events, ei)
	}
	out := copyEvents(events)
	out[ei] = withTickets(out[ei], remaining)
	return out
}

// SetReminder replaces the reminder of one event. Unknown settings are
// ignored; an empty setting means none.
func SetReminder(events []models.Event, eventID string, reminder models.Reminder) []models.Event {
	if !reminder.Valid() {
		return events
	}
	if reminder == "" {
		reminder = models.ReminderNone
	}
	ei := indexOfEvent(events, eventID)
	if ei < 0 {
		return events
	}
	out := copyEvents(events)
	out[ei].Reminder = reminder
	return out
}

// UpdateEvent merges the set fields of patch into the event. Id and tickets
// are not touched.
func UpdateEvent(events []models.Event, eventID string, patch models.EventPatch) []models.Event {
	ei := indexOfEvent(events, eventID)
	if ei < 0 {
		return events
	}
	out := copyEvents(events)
	e := &out[ei]
	if patch.Name != nil {
		e.Name = *patch.Name
	}
	if patch.Date != nil {
		e.Date = *patch.Date
	}
	if patch.Time != nil {
		e.Time = *patch.Time
	}
	if patch.Location != nil {
		e.Location = *patch.Location
	}
	return out
}

// UpdateTicket replaces the ticket with the same id inside the event. A
// ticket whose id is not already in the event is rejected.
func UpdateTicket(events []models.Event, eventID string, updated models.Ticket) []models.Event {
	ei := indexOfEvent(events, eventID)
	if ei < 0 || updated.ID == "" {
		return events
	}
	ti := indexOfTicket(events[ei].Tickets, updated.ID)
	if ti < 0 {
		return events
	}
	out := copyEvents(events)
	tickets := make([]models.Ticket, len(out[ei].Tickets))
	copy(tickets, out[ei].Tickets)
	tickets[ti] = updated
	out[ei] = withTickets(out[ei], tickets)
	return out
}

// MergeProposal is what the user confirms before a merge is applied.
type MergeProposal struct {
	SourceID      string `json:"sourceId"`
	TargetID      string `json:"targetId"`
	SuggestedName string `json:"suggestedName"`
}

// AttemptMerge validates merging source into target and proposes a name.
// It returns nil without error when there is nothing to merge (same event or
// an unknown id) and ErrMergeDateMismatch when the dates differ.
func AttemptMerge(events []models.Event, sourceID, targetID string) (*MergeProposal, error) {
	if sourceID == targetID {
		return nil, nil
	}
	si := indexOfEvent(events, sourceID)
	ti := indexOfEvent(events, targetID)
	if si < 0 || ti < 0 {
		return nil, nil
	}
	source, target := events[si], events[ti]
	if source.Date != target.Date {
		return nil, ErrMergeDateMismatch
	}
	return &MergeProposal{
		SourceID:      sourceID,
		TargetID:      targetID,
		SuggestedName: SuggestCommonName(source.Name, target.Name),
	}, nil
}

// ConfirmMerge moves every ticket of source to the end of target, renames
// target and removes source. A source or target that no longer exists makes
// it a no-op. The dates are checked again since either event may have been
// edited after the proposal was made. A blank name keeps the target's name.
func ConfirmMerge(events []models.Event, sourceID, targetID, name string) ([]models.Event, error) {
	if sourceID == targetID {
		return events, nil
	}
	si := indexOfEvent(events, sourceID)
	ti := indexOfEvent(events, targetID)
	if si < 0 || ti < 0 {
		return events, nil
	}
	source, target := events[si], events[ti]
	if source.Date != target.Date {
		return events, ErrMergeDateMismatch
	}

	tickets := make([]models.Ticket, 0, len(target.Tickets)+len(source.Tickets))
	tickets = append(tickets, target.Tickets...)
	tickets = append(tickets, source.Tickets...)

	merged := withTickets(target, tickets)
	if strings.TrimSpace(name) != "" {
		merged.Name = name
	}

	out := make([]models.Event, 0, len(events)-1)
	for i, e := range events {
		switch i {
		case si:
			continue
		case ti:
			out = append(out, merged)
		default:
			out = append(out, e)
		}
	}
	return out, nil
}

// DeleteEvent removes an event together with all of its tickets.
func DeleteEvent(events []models.Event, eventID string) []models.Event {
	ei := indexOfEvent(events, eventID)
	if ei < 0 {
		return events
	}
	return removeEvent(events, ei)
}

// FindEvent returns the event with the given id.
func FindEvent(events []models.Event, eventID string) (models.Event, bool) {
	ei := indexOfEvent(events, eventID)
	if ei < 0 {
		return models.Event{}, false
	}
	return events[ei], true
}

// CountTickets returns the number of tickets across all events.
func CountTickets(events []models.Event) int {
	n := 0
	for _, e := range events {
		n += len(e.Tickets)
	}
	return n
}

func indexOfEvent(events []models.Event, id string) int {
	for i, e := range events {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func indexOfTicket(tickets []models.Ticket, id string) int {
	for i, t := range tickets {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func copyEvents(events []models.Event) []models.Event {
	out := make([]models.Event, len(events))
	copy(out, events)
	return out
}

func removeEvent(events []models.Event, i int) []models.Event {
	out := make([]models.Event, 0, len(events)-1)
	out = append(out, events[:i]...)
	return append(out, events[i+1:]...)
}

func removeTicket(tickets []models.Ticket, i int) []models.Ticket {
	out := make([]models.Ticket, 0, len(tickets)-1)
	out = append(out, tickets[:i]...)
	return append(out, tickets[i+1:]...)
}

func appendTicket(tickets []models.Ticket, t models.Ticket) []models.Ticket {
	out := make([]models.Ticket, 0, len(tickets)+1)
	out = append(out, tickets...)
	return append(out, t)
}

func withTickets(e models.Event, tickets []models.Ticket) models.Event {
	e.Tickets = tickets
	return e
}
