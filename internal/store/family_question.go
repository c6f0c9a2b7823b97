package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/clock"
	"github.com/dukerupert/familyq/internal/model"
)

// FamilyQuestionStore persists lifecycle entries: one catalog question assigned
// to one family, tracked from IN_PROGRESS to COMPLETED.
type FamilyQuestionStore struct {
	db DBTX
}

func NewFamilyQuestionStore(db DBTX) *FamilyQuestionStore {
	return &FamilyQuestionStore{db: db}
}

func (s *FamilyQuestionStore) WithTx(tx *sql.Tx) *FamilyQuestionStore {
	return &FamilyQuestionStore{db: tx}
}

func scanFamilyQuestion(sc scanner, extra ...any) (*model.FamilyQuestion, error) {
	var fq model.FamilyQuestion
	var assigned string
	var completedAt sql.NullTime
	var insight sql.NullString

	dest := []any{
		&fq.ID, &fq.FamilyID, &fq.QuestionID, &fq.Round, &fq.SequenceNumber,
		&assigned, &fq.Status, &completedAt, &fq.RequiredMemberCount,
		&insight, &fq.Version, &fq.CreatedAt, &fq.UpdatedAt,
	}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	d, err := clock.ParseDate(assigned)
	if err != nil {
		return nil, fmt.Errorf("parse assigned date %q: %w", assigned, err)
	}
	fq.AssignedDate = d
	if completedAt.Valid {
		t := completedAt.Time
		fq.CompletedAt = &t
	}
	if insight.Valid {
		fq.InsightJSON = &insight.String
	}
	return &fq, nil
}

const familyQuestionCols = `id, family_id, question_id, round, sequence_number, assigned_date, status, completed_at, required_member_count, insight_json, version, created_at, updated_at`

// NewFamilyQuestion holds the fields set when an entry is created.
type NewFamilyQuestion struct {
	FamilyID            int64
	QuestionID          int64
	Round               int
	SequenceNumber      int
	AssignedDate        time.Time
	RequiredMemberCount int
}

// Create inserts a new IN_PROGRESS entry. A second entry with the same
// (family, round, sequence) or a second open entry for the family fails with a
// Conflict error.
func (s *FamilyQuestionStore) Create(ctx context.Context, p NewFamilyQuestion) (*model.FamilyQuestion, error) {
	round := p.Round
	if round < 1 {
		round = 1
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO family_questions (family_id, question_id, round, sequence_number, assigned_date, status, required_member_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.FamilyID, p.QuestionID, round, p.SequenceNumber,
		clock.FormatDate(p.AssignedDate), model.StatusInProgress, p.RequiredMemberCount,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, &apperr.Error{
				Kind:    apperr.KindConflict,
				Code:    apperr.CodeDuplicateSequence,
				Message: fmt.Sprintf("family %d already has sequence %d in round %d or an open question", p.FamilyID, p.SequenceNumber, round),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("insert family question: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *FamilyQuestionStore) GetByID(ctx context.Context, id int64) (*model.FamilyQuestion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyQuestionCols+` FROM family_questions WHERE id = ?`, id)
	fq, err := scanFamilyQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family question: %w", err)
	}
	return fq, nil
}

// GetInProgress returns the family's open entry, if any.
func (s *FamilyQuestionStore) GetInProgress(ctx context.Context, familyID int64) (*model.FamilyQuestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+familyQuestionCols+` FROM family_questions WHERE family_id = ? AND status = ?`,
		familyID, model.StatusInProgress,
	)
	fq, err := scanFamilyQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get in-progress family question: %w", err)
	}
	return fq, nil
}

// GetLatest returns the family's most recently sequenced entry.
func (s *FamilyQuestionStore) GetLatest(ctx context.Context, familyID int64) (*model.FamilyQuestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+familyQuestionCols+` FROM family_questions WHERE family_id = ?
		 ORDER BY round DESC, sequence_number DESC LIMIT 1`,
		familyID,
	)
	fq, err := scanFamilyQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest family question: %w", err)
	}
	return fq, nil
}

// ListByFamily returns a family's entries with their question text, newest first.
func (s *FamilyQuestionStore) ListByFamily(ctx context.Context, familyID int64) ([]model.FamilyQuestionWithText, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fq.id, fq.family_id, fq.question_id, fq.round, fq.sequence_number, fq.assigned_date, fq.status,
		        fq.completed_at, fq.required_member_count, fq.insight_json, fq.version, fq.created_at, fq.updated_at, q.text
		 FROM family_questions fq
		 JOIN questions q ON q.id = fq.question_id
		 WHERE fq.family_id = ?
		 ORDER BY fq.round DESC, fq.sequence_number DESC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list family questions: %w", err)
	}
	defer rows.Close()

	var entries []model.FamilyQuestionWithText
	for rows.Next() {
		var text string
		fq, err := scanFamilyQuestion(rows, &text)
		if err != nil {
			return nil, fmt.Errorf("scan family question: %w", err)
		}
		entries = append(entries, model.FamilyQuestionWithText{FamilyQuestion: *fq, QuestionText: text})
	}
	return entries, rows.Err()
}

// CountBySequence returns how many entries exist for the (family, round,
// sequence) triple. Used to check uniqueness in tests and diagnostics.
func (s *FamilyQuestionStore) CountBySequence(ctx context.Context, familyID int64, round, sequence int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM family_questions WHERE family_id = ? AND round = ? AND sequence_number = ?`,
		familyID, round, sequence,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count family questions: %w", err)
	}
	return n, nil
}

// UpdateRequiredCount stores a recomputed required member count on an open entry.
func (s *FamilyQuestionStore) UpdateRequiredCount(ctx context.Context, id int64, required int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE family_questions SET required_member_count = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		required, id, model.StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("update required member count: %w", err)
	}
	return nil
}

// MarkCompleted moves an open entry to COMPLETED. It reports false when the
// entry was not IN_PROGRESS, so only one caller can ever win the transition.
func (s *FamilyQuestionStore) MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE family_questions
		 SET status = ?, completed_at = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		model.StatusCompleted, at, id, model.StatusInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("mark family question completed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// SaveInsight writes the insight payload of a completed entry once. It reports
// false if a payload was already present or the entry is not completed.
func (s *FamilyQuestionStore) SaveInsight(ctx context.Context, id int64, payload string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE family_questions SET insight_json = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND insight_json IS NULL`,
		payload, id, model.StatusCompleted,
	)
	if err != nil {
		return false, fmt.Errorf("save insight: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// DeleteInProgress discards an open entry together with its answers.
func (s *FamilyQuestionStore) DeleteInProgress(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM family_questions WHERE id = ? AND status = ?`,
		id, model.StatusInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("delete family question: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
