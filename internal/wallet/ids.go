package wallet

import "github.com/google/uuid"

// NewEventID returns a fresh event identity. Event ids are never reused.
func NewEventID() string {
	return "evt_" + uuid.NewString()
}

func NewTicketID() string {
	return "tkt_" + uuid.NewString()
}
