package model

import "time"

// Role tags a member's position in the family.
type Role string

const (
	RoleFather Role = "father"
	RoleMother Role = "mother"
	RoleChild  Role = "child"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleFather, RoleMother, RoleChild:
		return true
	}
	return false
}

type Family struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	QuestionsStarted bool      `json:"questions_started"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Member struct {
	ID        int64     `json:"id"`
	FamilyID  *int64    `json:"family_id,omitempty"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	BirthYear int       `json:"birth_year"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BelongsTo reports whether the member is currently on familyID's roster.
func (m *Member) BelongsTo(familyID int64) bool {
	return m.FamilyID != nil && *m.FamilyID == familyID
}
