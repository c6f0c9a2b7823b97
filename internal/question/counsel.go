package question

import (
	"context"
	"time"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/insight"
)

// Counseling is a fresh summary of a completed entry's answers, produced on
// request and never stored.
type Counseling struct {
	EntryID      int64            `json:"family_question_id"`
	QuestionText string           `json:"question_text"`
	Summary      *insight.Summary `json:"summary"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// Counsel runs the generator over a completed entry of the caller's family.
// The stored insight is left untouched.
func (in *Intake) Counsel(ctx context.Context, memberID, entryID int64) (*Counseling, error) {
	_, familyID, err := memberFamily(ctx, in.families, memberID)
	if err != nil {
		return nil, err
	}

	fq, err := in.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if fq == nil {
		return nil, apperr.NotFound(apperr.CodeFamilyQuestionNotFound, "question not found")
	}
	if fq.FamilyID != familyID {
		return nil, apperr.Forbidden(apperr.CodeCrossFamily, "question belongs to another family")
	}
	if !fq.IsCompleted() {
		return nil, apperr.Conflict(apperr.CodeNotCompleted, "not every family member has answered yet")
	}
	if in.generator == nil {
		return nil, apperr.External(apperr.CodeInsightFailed, "counseling is unavailable", nil)
	}

	req, err := in.insightRequest(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if len(req.Answers) == 0 {
		return nil, apperr.NotFound(apperr.CodeAnswerNotFound, "question has no answers")
	}

	gctx, cancel := context.WithTimeout(ctx, in.opts.InsightTimeout)
	defer cancel()
	summary, err := in.generator.Generate(gctx, req)
	if err != nil {
		in.opts.Logger.Warn("counseling generation failed", "entry_id", entryID, "error", err)
		return nil, apperr.External(apperr.CodeInsightFailed, "counseling request failed", err)
	}

	return &Counseling{
		EntryID:      entryID,
		QuestionText: req.QuestionText,
		Summary:      summary,
		GeneratedAt:  in.opts.Clock.Now(),
	}, nil
}
