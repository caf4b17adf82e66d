package domain

import "time"

// UnitKind distinguishes the organizational levels tickets are grouped by.
type UnitKind string

const (
	UnitKindCollege UnitKind = "COLLEGE"
	UnitKindProgram UnitKind = "PROGRAM"
)

// OrgUnit is the organizational unit (college or program) used as the
// grouping key in the ticket directory.
type OrgUnit struct {
	ID        string
	Name      string
	Kind      UnitKind
	ParentID  *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
