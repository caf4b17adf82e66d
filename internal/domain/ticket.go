package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// Ticket is the aggregate for a support conversation. Tickets are created by
// the surrounding ERP and only ever mutated here through the state machine;
// they are never deleted.
type Ticket struct {
	ID            string
	UnitID        string
	Subject       string
	RequesterID   string
	RequesterName string
	Status        TicketStatus
	LastMessage   string
	LastSender    SenderRole
	LastUpdatedAt time.Time
	CreatedAt     time.Time
}

// IsClosed reports whether the ticket is in the closed state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}
