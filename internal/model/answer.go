package model

import "time"

type Answer struct {
	ID               int64     `json:"id"`
	FamilyQuestionID int64     `json:"family_question_id"`
	MemberID         int64     `json:"member_id"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AnswerWithMember joins an answer with the member who wrote it.
type AnswerWithMember struct {
	Answer
	MemberName string `json:"member_name"`
	Role       Role   `json:"role"`
	BirthYear  int    `json:"birth_year"`
}
