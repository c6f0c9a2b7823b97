package question

import (
	"context"
	"database/sql"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/insight"
	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/store"
)

// TodayView is what a member sees for their family's current question.
type TodayView struct {
	Entry         *model.FamilyQuestion `json:"entry"`
	QuestionText  string                `json:"question_text"`
	AnsweredCount int                   `json:"answered_count"`
	MyAnswer      *model.Answer         `json:"my_answer,omitempty"`
	Insight       *insight.Summary      `json:"insight,omitempty"`
}

// DetailView is one entry with the answers the caller may see.
type DetailView struct {
	Entry        *model.FamilyQuestion    `json:"entry"`
	QuestionText string                   `json:"question_text"`
	Answers      []model.AnswerWithMember `json:"answers"`
	Insight      *insight.Summary         `json:"insight,omitempty"`
}

// Reader serves the member-facing read views.
type Reader struct {
	assigner *Assigner
	families *store.FamilyStore
	catalog  *store.CatalogStore
	entries  *store.FamilyQuestionStore
	answers  *store.AnswerStore
	opts     Options
}

func NewReader(db *sql.DB, assigner *Assigner, opts Options) *Reader {
	return &Reader{
		assigner: assigner,
		families: store.NewFamilyStore(db),
		catalog:  store.NewCatalogStore(db),
		entries:  store.NewFamilyQuestionStore(db),
		answers:  store.NewAnswerStore(db),
		opts:     opts.withDefaults(),
	}
}

// Today resolves the caller's current entry, creating it if the daily rule
// allows, and reports progress on it.
func (r *Reader) Today(ctx context.Context, memberID int64) (*TodayView, error) {
	_, familyID, err := memberFamily(ctx, r.families, memberID)
	if err != nil {
		return nil, err
	}

	fq, err := r.assigner.ResolveCurrent(ctx, familyID)
	if err != nil {
		return nil, err
	}

	text, err := r.questionText(ctx, fq.QuestionID)
	if err != nil {
		return nil, err
	}
	count, err := r.answers.CountMembers(ctx, fq.ID)
	if err != nil {
		return nil, err
	}
	mine, err := r.answers.Get(ctx, fq.ID, memberID)
	if err != nil {
		return nil, err
	}

	return &TodayView{
		Entry:         fq,
		QuestionText:  text,
		AnsweredCount: count,
		MyAnswer:      mine,
		Insight:       r.decodeInsight(fq),
	}, nil
}

// History lists the caller's family entries, newest first.
func (r *Reader) History(ctx context.Context, memberID int64) ([]model.FamilyQuestionWithText, error) {
	_, familyID, err := memberFamily(ctx, r.families, memberID)
	if err != nil {
		return nil, err
	}
	return r.entries.ListByFamily(ctx, familyID)
}

// Detail returns one entry. Until it completes the caller only sees their own
// answer and no insight.
func (r *Reader) Detail(ctx context.Context, memberID, entryID int64) (*DetailView, error) {
	_, familyID, err := memberFamily(ctx, r.families, memberID)
	if err != nil {
		return nil, err
	}

	fq, err := r.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if fq == nil {
		return nil, apperr.NotFound(apperr.CodeFamilyQuestionNotFound, "question not found")
	}
	if fq.FamilyID != familyID {
		return nil, apperr.Forbidden(apperr.CodeCrossFamily, "question belongs to another family")
	}

	text, err := r.questionText(ctx, fq.QuestionID)
	if err != nil {
		return nil, err
	}
	all, err := r.answers.ListByEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	view := &DetailView{Entry: fq, QuestionText: text, Answers: []model.AnswerWithMember{}}
	for _, a := range all {
		if fq.IsCompleted() || a.MemberID == memberID {
			view.Answers = append(view.Answers, a)
		}
	}
	if fq.IsCompleted() {
		view.Insight = r.decodeInsight(fq)
	}
	return view, nil
}

func (r *Reader) questionText(ctx context.Context, questionID int64) (string, error) {
	q, err := r.catalog.GetByID(ctx, questionID)
	if err != nil {
		return "", err
	}
	if q == nil {
		return "", apperr.NotFound(apperr.CodeQuestionNotFound, "catalog question not found")
	}
	return q.Text, nil
}

// decodeInsight returns the stored summary of a completed entry. A payload
// that does not decode is logged and treated as absent.
func (r *Reader) decodeInsight(fq *model.FamilyQuestion) *insight.Summary {
	if !fq.IsCompleted() || !fq.HasInsight() {
		return nil
	}
	s, err := insight.Unmarshal(*fq.InsightJSON)
	if err != nil {
		r.opts.Logger.Warn("stored insight is unreadable", "entry_id", fq.ID, "error", err)
		return nil
	}
	return s
}
