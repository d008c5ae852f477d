package models

type Event struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Date     string   `json:"date"` // YYYY-MM-DD, no timezone
	Time     string   `json:"time"`
	Location string   `json:"location"`
	Tickets  []Ticket `json:"tickets"`
	Reminder Reminder `json:"reminder,omitempty"`
}

// EventDetails are the user-editable fields of an event, as supplied by an
// extraction or by the "create new event" branch of a ticket move.
type EventDetails struct {
	Name     string `json:"name"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Location string `json:"location"`
}

// EventPatch carries the fields of a partial event update. Nil fields are
// left untouched.
type EventPatch struct {
	Name     *string `json:"name,omitempty"`
	Date     *string `json:"date,omitempty"`
	Time     *string `json:"time,omitempty"`
	Location *string `json:"location,omitempty"`
}

type NewTicketPayload struct {
	Ticket       Ticket       `json:"ticket"`
	EventDetails EventDetails `json:"eventDetails"`
}

// MoveDestination is either an existing event (EventID set) or a new event
// built from NewEvent.
type MoveDestination struct {
	EventID  string        `json:"eventId,omitempty"`
	NewEvent *EventDetails `json:"newEventDetails,omitempty"`
}
