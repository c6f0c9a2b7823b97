package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/familyq/internal/model"
)

type AnswerStore struct {
	db DBTX
}

func NewAnswerStore(db DBTX) *AnswerStore {
	return &AnswerStore{db: db}
}

func (s *AnswerStore) WithTx(tx *sql.Tx) *AnswerStore {
	return &AnswerStore{db: tx}
}

func scanAnswer(sc scanner) (*model.Answer, error) {
	var a model.Answer
	err := sc.Scan(&a.ID, &a.FamilyQuestionID, &a.MemberID, &a.Content, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const answerCols = `id, family_question_id, member_id, content, created_at, updated_at`

// Upsert records a member's answer to an entry, replacing the content of an
// earlier answer by the same member instead of adding a second row.
func (s *AnswerStore) Upsert(ctx context.Context, entryID, memberID int64, content string, now time.Time) (*model.Answer, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (family_question_id, member_id, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (family_question_id, member_id)
		 DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		entryID, memberID, content, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}
	a, err := s.Get(ctx, entryID, memberID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("upsert answer: row missing after write")
	}
	return a, nil
}

// Get returns memberID's answer to entryID, or nil if they have not answered.
func (s *AnswerStore) Get(ctx context.Context, entryID, memberID int64) (*model.Answer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE family_question_id = ? AND member_id = ?`,
		entryID, memberID,
	)
	a, err := scanAnswer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

// CountMembers returns the number of distinct members who answered entryID.
func (s *AnswerStore) CountMembers(ctx context.Context, entryID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT member_id) FROM answers WHERE family_question_id = ?`, entryID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}

// ListByEntry returns every answer to entryID with its author, oldest first.
func (s *AnswerStore) ListByEntry(ctx context.Context, entryID int64) ([]model.AnswerWithMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.family_question_id, a.member_id, a.content, a.created_at, a.updated_at,
		        m.name, m.role, m.birth_year
		 FROM answers a
		 JOIN members m ON m.id = a.member_id
		 WHERE a.family_question_id = ?
		 ORDER BY a.created_at ASC, a.id ASC`,
		entryID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []model.AnswerWithMember
	for rows.Next() {
		var a model.AnswerWithMember
		if err := rows.Scan(
			&a.ID, &a.FamilyQuestionID, &a.MemberID, &a.Content, &a.CreatedAt, &a.UpdatedAt,
			&a.MemberName, &a.Role, &a.BirthYear,
		); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
