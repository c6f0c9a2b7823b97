package insight

import (
	"encoding/json"
	"fmt"
)

const systemPrompt = `You are a family counselor. The user message is a JSON document holding one question and the answers that members of one family gave to it, together with each member's role, birth year, age group and, for children, birth order.

Read the answers with each member's age and developmental stage in mind. Then reply with a single JSON object and nothing else:

{
  "common_points": "what the members agree on",
  "differences": "how the parents' and children's views differ, taking age into account",
  "suggested_dialogue": ["one short sentence the family could say to each other", "a second one"]
}`

type promptMember struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	BirthYear  int    `json:"birth_year"`
	AgeGroup   string `json:"age_group"`
	BirthOrder string `json:"birth_order,omitempty"`
}

type promptAnswer struct {
	Member     string `json:"member"`
	Role       string `json:"role"`
	BirthYear  int    `json:"birth_year"`
	AgeGroup   string `json:"age_group"`
	BirthOrder string `json:"birth_order,omitempty"`
	Answer     string `json:"answer"`
}

type promptPayload struct {
	Question string         `json:"question"`
	Members  []promptMember `json:"members"`
	Answers  []promptAnswer `json:"answers"`
}

// UserPrompt renders req as the user message sent to a chat model.
func UserPrompt(req Request) (string, error) {
	p := promptPayload{
		Question: req.QuestionText,
		Members:  make([]promptMember, 0, len(req.Members)),
		Answers:  make([]promptAnswer, 0, len(req.Answers)),
	}
	for _, m := range req.Members {
		p.Members = append(p.Members, promptMember{
			Name:       m.Name,
			Role:       string(m.Role),
			BirthYear:  m.BirthYear,
			AgeGroup:   m.AgeGroup,
			BirthOrder: m.BirthOrder,
		})
	}
	for _, a := range req.Answers {
		p.Answers = append(p.Answers, promptAnswer{
			Member:     a.MemberName,
			Role:       string(a.Role),
			BirthYear:  a.BirthYear,
			AgeGroup:   a.AgeGroup,
			BirthOrder: a.BirthOrder,
			Answer:     a.Content,
		})
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}
	return string(data), nil
}
