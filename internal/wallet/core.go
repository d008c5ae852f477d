package wallet

import (
	"time"

	"ticket-wallet/internal/clock"
	"ticket-wallet/internal/models"
)

const dateLayout = "2006-01-02"

// Core holds what the event-creating operations need beyond their input:
// a source of fresh event ids and the current date.
type Core struct {
	Clock      clock.Clock
	Location   *time.Location
	NewEventID func() string
}

func NewCore(clk clock.Clock, loc *time.Location) *Core {
	if loc == nil {
		loc = time.Local
	}
	return &Core{Clock: clk, Location: loc, NewEventID: NewEventID}
}

// Today is the current calendar date in the core's location.
func (c *Core) Today() string {
	return c.Clock.Now().In(c.Location).Format(dateLayout)
}

// AddBatch folds the payloads into events left to right. Each ticket joins
// the first event on the same date whose name matches; otherwise it starts a
// new event. Later payloads see the events created by earlier ones.
func (c *Core) AddBatch(events []models.Event, payloads []models.NewTicketPayload) []models.Event {
	acc := copyEvents(events)
	for _, p := range payloads {
		acc = c.addOne(acc, p)
	}
	return acc
}

func (c *Core) addOne(acc []models.Event, p models.NewTicketPayload) []models.Event {
	date := p.EventDetails.Date
	if date == "" {
		date = c.Today()
	}

	for i, e := range acc {
		if e.Date == date && NamesMatch(e.Name, p.EventDetails.Name) {
			acc[i] = withTickets(e, appendTicket(e.Tickets, p.Ticket))
			return acc
		}
	}

	return append(acc, models.Event{
		ID:       c.NewEventID(),
		Name:     p.EventDetails.Name,
		Date:     date,
		Time:     p.EventDetails.Time,
		Location: p.EventDetails.Location,
		Tickets:  []models.Ticket{p.Ticket},
		Reminder: models.ReminderNone,
	})
}

// MoveResult is the outcome of MoveTicket.
type MoveResult struct {
	Events        []models.Event
	Moved         bool
	SourceEventID string
	// SourceRemoved is set when the moved ticket was the last one of its
	// event, which is therefore gone from Events.
	SourceRemoved bool
	// NewEventID is set when the destination was a new event.
	NewEventID string
}

// NavigateToList reports whether a view showing viewingEventID has to go
// back to the event list after this move.
func (r MoveResult) NavigateToList(viewingEventID string) bool {
	return r.SourceRemoved && viewingEventID != "" && viewingEventID == r.SourceEventID
}

// MoveTicket transfers a ticket from one event to an existing event or to a
// new one. The ticket count across all events is unchanged. Unknown source,
// ticket or destination leave the events as they were.
func (c *Core) MoveTicket(events []models.Event, sourceEventID, ticketID string, dest models.MoveDestination) MoveResult {
	unchanged := MoveResult{Events: events}

	si := indexOfEvent(events, sourceEventID)
	if si < 0 {
		return unchanged
	}
	source := events[si]
	ti := indexOfTicket(source.Tickets, ticketID)
	if ti < 0 {
		return unchanged
	}
	ticket := source.Tickets[ti]

	var newEvent *models.Event
	di := -1
	switch {
	case dest.EventID != "":
		if dest.EventID == sourceEventID {
			return unchanged
		}
		di = indexOfEvent(events, dest.EventID)
		if di < 0 {
			return unchanged
		}
	case dest.NewEvent != nil:
		newEvent = &models.Event{
			ID:       c.NewEventID(),
			Name:     dest.NewEvent.Name,
			Date:     dest.NewEvent.Date,
			Time:     dest.NewEvent.Time,
			Location: dest.NewEvent.Location,
			Tickets:  []models.Ticket{ticket},
			Reminder: models.ReminderNone,
		}
	default:
		return unchanged
	}

	remaining := removeTicket(source.Tickets, ti)
	out := make([]models.Event, 0, len(events)+1)
	for i, e := range events {
		switch i {
		case si:
			if len(remaining) > 0 {
				out = append(out, withTickets(e, remaining))
			}
		case di:
			out = append(out, withTickets(e, appendTicket(e.Tickets, ticket)))
		default:
			out = append(out, e)
		}
	}

	res := MoveResult{Moved: true, SourceEventID: sourceEventID, SourceRemoved: len(remaining) == 0}
	if newEvent != nil {
		out = append(out, *newEvent)
		res.NewEventID = newEvent.ID
	}
	res.Events = out
	return res
}
