// Package insight turns a completed question's answers into a short summary of
// what the family agrees on, where generations differ, and what to talk about
// next.
package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dukerupert/familyq/internal/model"
)

// Generator produces a Summary for one completed entry. Implementations may
// call remote services and must honour ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Summary, error)
}

// Member describes one person on the roster at completion time.
type Member struct {
	Name       string
	Role       model.Role
	BirthYear  int
	AgeGroup   string
	BirthOrder string
}

// Answer is one member's answer with the context a generator needs to
// interpret it.
type Answer struct {
	MemberName string
	Role       model.Role
	BirthYear  int
	AgeGroup   string
	BirthOrder string
	Content    string
}

type Request struct {
	QuestionText string
	Members      []Member
	Answers      []Answer
}

type Summary struct {
	CommonThemes            []string `json:"common_themes"`
	GenerationDifferences   []string `json:"generation_differences"`
	ConversationSuggestions []string `json:"conversation_suggestions"`
}

var ErrNoAnswers = errors.New("insight: request has no answers")

// Marshal encodes a summary for storage alongside its entry.
func Marshal(s *Summary) (string, error) {
	if s == nil {
		return "", errors.New("insight: nil summary")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return string(data), nil
}

// Unmarshal decodes a stored summary.
func Unmarshal(payload string) (*Summary, error) {
	var s Summary
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &s, nil
}

// AgeGroup buckets a birth year into decades relative to currentYear.
func AgeGroup(birthYear, currentYear int) string {
	age := currentYear - birthYear
	if age < 10 {
		return "under 10"
	}
	decade := (age / 10) * 10
	if decade >= 60 {
		return "60+"
	}
	return fmt.Sprintf("%ds", decade)
}

// BirthOrders ranks the children on a roster by birth year, oldest first.
// Members who are not children get no entry.
func BirthOrders(roster []model.Member) map[int64]string {
	var children []model.Member
	for _, m := range roster {
		if m.Role == model.RoleChild {
			children = append(children, m)
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].BirthYear < children[j].BirthYear
	})

	orders := make(map[int64]string, len(children))
	for i, c := range children {
		orders[c.ID] = birthOrderLabel(i)
	}
	return orders
}

func birthOrderLabel(i int) string {
	switch i {
	case 0:
		return "first child"
	case 1:
		return "second child"
	case 2:
		return "third child"
	case 3:
		return "fourth child"
	default:
		return fmt.Sprintf("%dth child", i+1)
	}
}

// BuildRequest assembles a generator request from the current roster and an
// entry's answers, which must already be in submission order.
func BuildRequest(questionText string, roster []model.Member, answers []model.AnswerWithMember, currentYear int) Request {
	orders := BirthOrders(roster)

	req := Request{
		QuestionText: questionText,
		Members:      make([]Member, 0, len(roster)),
		Answers:      make([]Answer, 0, len(answers)),
	}
	for _, m := range roster {
		req.Members = append(req.Members, Member{
			Name:       m.Name,
			Role:       m.Role,
			BirthYear:  m.BirthYear,
			AgeGroup:   AgeGroup(m.BirthYear, currentYear),
			BirthOrder: orders[m.ID],
		})
	}
	for _, a := range answers {
		req.Answers = append(req.Answers, Answer{
			MemberName: a.MemberName,
			Role:       a.Role,
			BirthYear:  a.BirthYear,
			AgeGroup:   AgeGroup(a.BirthYear, currentYear),
			BirthOrder: orders[a.MemberID],
			Content:    a.Content,
		})
	}
	return req
}

// roleLabel names a member the way summaries refer to them.
func roleLabel(role model.Role, birthOrder string) string {
	if birthOrder != "" {
		return birthOrder
	}
	return string(role)
}
