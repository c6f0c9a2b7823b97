package question

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/insight"
	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/store"
	ws "github.com/dukerupert/familyq/internal/websocket"
)

// Submission is the outcome of one answer submission.
type Submission struct {
	Answer *model.Answer         `json:"answer"`
	Entry  *model.FamilyQuestion `json:"entry"`

	// Completed is true only for the submission that closed the entry.
	Completed bool `json:"completed"`
}

// Intake accepts answers and closes an entry once enough members answered.
type Intake struct {
	db        *sql.DB
	families  *store.FamilyStore
	catalog   *store.CatalogStore
	entries   *store.FamilyQuestionStore
	answers   *store.AnswerStore
	generator insight.Generator
	locks     *keyedMutex
	opts      Options
}

func NewIntake(db *sql.DB, generator insight.Generator, opts Options) *Intake {
	return &Intake{
		db:        db,
		families:  store.NewFamilyStore(db),
		catalog:   store.NewCatalogStore(db),
		entries:   store.NewFamilyQuestionStore(db),
		answers:   store.NewAnswerStore(db),
		generator: generator,
		locks:     newKeyedMutex(),
		opts:      opts.withDefaults(),
	}
}

// normalizeContent trims and NFC-normalises an answer and enforces its bounds.
func normalizeContent(content string) (string, error) {
	content = norm.NFC.String(strings.TrimSpace(content))
	if content == "" {
		return "", apperr.Invalid(apperr.CodeInvalidContent, "answer must not be empty")
	}
	if n := utf8.RuneCountInString(content); n > MaxAnswerLength {
		return "", apperr.Invalid(apperr.CodeInvalidContent,
			fmt.Sprintf("answer is %d characters, limit is %d", n, MaxAnswerLength))
	}
	return content, nil
}

// checkEntry applies the access rules shared by the fast path and the locked
// re-read.
func checkEntry(fq *model.FamilyQuestion, familyID int64) error {
	if fq == nil {
		return apperr.NotFound(apperr.CodeFamilyQuestionNotFound, "question not found")
	}
	if fq.FamilyID != familyID {
		return apperr.Forbidden(apperr.CodeCrossFamily, "question belongs to another family")
	}
	if fq.IsCompleted() {
		return apperr.Conflict(apperr.CodeAlreadyCompleted, "question is already completed")
	}
	return nil
}

// Submit records memberID's answer to entryID and, when the answer count
// reaches the required member count, completes the entry and attaches an
// insight. Insight failures are logged and never fail the submission.
func (in *Intake) Submit(ctx context.Context, memberID, entryID int64, content string) (*Submission, error) {
	content, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}

	_, familyID, err := memberFamily(ctx, in.families, memberID)
	if err != nil {
		return nil, err
	}

	fq, err := in.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := checkEntry(fq, familyID); err != nil {
		return nil, err
	}

	unlock := in.locks.Lock(entryID)
	defer unlock()

	var (
		sub      = &Submission{}
		answered int
	)
	err = store.InTx(ctx, in.db, func(tx *sql.Tx) error {
		families := in.families.WithTx(tx)
		entries := in.entries.WithTx(tx)
		answers := in.answers.WithTx(tx)

		cur, err := entries.GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		if err := checkEntry(cur, familyID); err != nil {
			return err
		}

		size, err := families.Size(ctx, familyID)
		if err != nil {
			return err
		}
		required := model.RequiredMembers(cur.RequiredMemberCount, size, in.opts.MinMembers)
		if required != cur.RequiredMemberCount {
			if err := entries.UpdateRequiredCount(ctx, entryID, required); err != nil {
				return err
			}
		}

		now := in.opts.Clock.Now().UTC()
		sub.Answer, err = answers.Upsert(ctx, entryID, memberID, content, now)
		if err != nil {
			return err
		}

		answered, err = answers.CountMembers(ctx, entryID)
		if err != nil {
			return err
		}
		if answered >= required {
			won, err := entries.MarkCompleted(ctx, entryID, now)
			if err != nil {
				return err
			}
			if !won {
				return apperr.Conflict(apperr.CodeAlreadyCompleted, "question is already completed")
			}
			sub.Completed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	in.opts.Notifier.BroadcastFamily(familyID, ws.NewMessage("answer", "submitted", sub.Answer.ID, map[string]any{
		"family_question_id": entryID,
		"member_id":          memberID,
		"answered_count":     answered,
	}))

	if sub.Completed {
		in.opts.Logger.Info("question completed",
			"family_id", familyID,
			"entry_id", entryID,
			"answered", answered,
		)
		in.attachInsight(ctx, entryID)
		in.opts.Notifier.BroadcastFamily(familyID, ws.NewMessage("question", "completed", entryID, nil))
	}

	sub.Entry, err = in.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// attachInsight generates and stores the insight for a just-completed entry.
// The caller holds the entry lock. Every failure is logged and absorbed: the
// entry stays completed without an insight.
func (in *Intake) attachInsight(ctx context.Context, entryID int64) {
	if in.generator == nil {
		return
	}
	logger := in.opts.Logger.With("entry_id", entryID)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), in.opts.InsightTimeout)
	defer cancel()

	req, err := in.insightRequest(ctx, entryID)
	if err != nil {
		logger.Error("build insight request", "error", err)
		return
	}

	summary, err := in.generator.Generate(ctx, req)
	if err != nil {
		logger.Warn("insight generation failed",
			"error", apperr.External(apperr.CodeInsightFailed, "insight generator failed", err))
		return
	}

	payload, err := insight.Marshal(summary)
	if err != nil {
		logger.Error("encode insight", "error", err)
		return
	}
	saved, err := in.entries.SaveInsight(ctx, entryID, payload)
	if err != nil {
		logger.Error("save insight", "error", err)
		return
	}
	if !saved {
		logger.Warn("insight already present, keeping the stored one")
	}
}

func (in *Intake) insightRequest(ctx context.Context, entryID int64) (insight.Request, error) {
	fq, err := in.entries.GetByID(ctx, entryID)
	if err != nil {
		return insight.Request{}, err
	}
	if fq == nil {
		return insight.Request{}, fmt.Errorf("entry %d vanished", entryID)
	}
	q, err := in.catalog.GetByID(ctx, fq.QuestionID)
	if err != nil {
		return insight.Request{}, err
	}
	if q == nil {
		return insight.Request{}, fmt.Errorf("catalog question %d missing", fq.QuestionID)
	}
	roster, err := in.families.Members(ctx, fq.FamilyID)
	if err != nil {
		return insight.Request{}, err
	}
	answers, err := in.answers.ListByEntry(ctx, entryID)
	if err != nil {
		return insight.Request{}, err
	}
	year := in.opts.Clock.Now().In(in.opts.Location).Year()
	return insight.BuildRequest(q.Text, roster, answers, year), nil
}
