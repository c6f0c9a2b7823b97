package model

import "time"

// MinMembersToStart is the smallest roster a family needs before its question
// cycle may begin, and the floor for a new entry's required member count.
const MinMembersToStart = 2

// CatalogQuestion is one entry of the ordered master question list.
type CatalogQuestion struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type FamilyQuestionStatus string

const (
	StatusInProgress FamilyQuestionStatus = "IN_PROGRESS"
	StatusCompleted  FamilyQuestionStatus = "COMPLETED"
)

// FamilyQuestion is one catalog question assigned to one family on one date,
// tracked until enough members have answered it.
type FamilyQuestion struct {
	ID                  int64                `json:"id"`
	FamilyID            int64                `json:"family_id"`
	QuestionID          int64                `json:"question_id"`
	Round               int                  `json:"round"`
	SequenceNumber      int                  `json:"sequence_number"`
	AssignedDate        time.Time            `json:"assigned_date"`
	Status              FamilyQuestionStatus `json:"status"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty"`
	RequiredMemberCount int                  `json:"required_member_count"`
	InsightJSON         *string              `json:"-"`
	Version             int                  `json:"version"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

func (fq *FamilyQuestion) IsCompleted() bool {
	return fq.Status == StatusCompleted
}

// HasInsight reports whether an insight payload has been stored.
func (fq *FamilyQuestion) HasInsight() bool {
	return fq.InsightJSON != nil && *fq.InsightJSON != ""
}

// RequiredMembers recomputes the number of answers needed to complete an entry
// for the current roster size. The result never drops below the stored value
// or the policy minimum unless the roster itself is smaller, and is never
// below one.
func RequiredMembers(stored, rosterSize, policyMin int) int {
	want := max(policyMin, stored)
	if want > rosterSize {
		want = rosterSize
	}
	if want < 1 {
		want = 1
	}
	return want
}

// InitialRequiredMembers is the required member count for a newly created entry.
func InitialRequiredMembers(rosterSize, policyMin int) int {
	return max(policyMin, rosterSize)
}

// FamilyQuestionWithText joins an entry with its catalog question text.
type FamilyQuestionWithText struct {
	FamilyQuestion
	QuestionText string `json:"question_text"`
}
