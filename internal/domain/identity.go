package domain

import "time"

// SenderRole identifies who authored a message or performed a transition.
// SenderSystem is the reserved identity for audit messages appended on
// status transitions.
type SenderRole string

const (
	SenderRequester SenderRole = "REQUESTER"
	SenderAdmin     SenderRole = "ADMIN"
	SenderTeacher   SenderRole = "TEACHER"
	SenderAssociate SenderRole = "ASSOCIATE"
	SenderSystem    SenderRole = "SYSTEM"
)

// IsResponder reports whether the role may close or reopen tickets and
// message closed tickets.
func (r SenderRole) IsResponder() bool {
	switch r {
	case SenderAdmin, SenderTeacher, SenderAssociate:
		return true
	}
	return false
}

// SubjectType differentiates requester vs responder tokens.
type SubjectType string

const (
	SubjectTypeRequester SubjectType = "REQUESTER"
	SubjectTypeResponder SubjectType = "RESPONDER"
)

// Actor is the resolved identity acting on a conversation.
type Actor struct {
	ID   string
	Name string
	Role SenderRole
}

// Requester is a student submitting tickets.
type Requester struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	UnitID       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Responder is an admin, teacher or associate answering tickets.
type Responder struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         SenderRole
	UnitID       *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
