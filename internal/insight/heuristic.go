package insight

import (
	"context"
	"fmt"
	"strings"
)

// Heuristic is a deterministic local Generator used when no remote model is
// configured.
type Heuristic struct{}

func (Heuristic) Generate(ctx context.Context, req Request) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Answers) == 0 {
		return nil, ErrNoAnswers
	}

	contents := make([]string, 0, len(req.Answers))
	for _, a := range req.Answers {
		contents = append(contents, a.Content)
	}

	var differences []string
	for _, a := range req.Answers[:min(2, len(req.Answers))] {
		differences = append(differences, fmt.Sprintf("%s view: %s", roleLabel(a.Role, a.BirthOrder), a.Content))
	}

	return &Summary{
		CommonThemes:          []string{"What the family shared: " + strings.Join(contents, ", ")},
		GenerationDifferences: differences,
		ConversationSuggestions: []string{
			fmt.Sprintf("Talk more about how each of you sees '%s'.", req.QuestionText),
			"Take a moment to describe your feelings in more detail.",
		},
	}, nil
}
