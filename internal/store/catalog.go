package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/model"
)

// CatalogStore keeps the ordered master question list. order_index values are
// dense and 1-based: every insert and delete shifts its neighbours so there are
// never gaps or duplicates.
type CatalogStore struct {
	db DBTX
}

func NewCatalogStore(db DBTX) *CatalogStore {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) WithTx(tx *sql.Tx) *CatalogStore {
	return &CatalogStore{db: tx}
}

func scanQuestion(sc scanner) (*model.CatalogQuestion, error) {
	var q model.CatalogQuestion
	err := sc.Scan(&q.ID, &q.Text, &q.OrderIndex, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

const questionCols = `id, text, order_index, created_at, updated_at`

func (s *CatalogStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

func (s *CatalogStore) GetByID(ctx context.Context, id int64) (*model.CatalogQuestion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *CatalogStore) GetByOrderIndex(ctx context.Context, orderIndex int) (*model.CatalogQuestion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions WHERE order_index = ?`, orderIndex)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question by order index: %w", err)
	}
	return q, nil
}

func (s *CatalogStore) List(ctx context.Context) ([]model.CatalogQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionCols+` FROM questions ORDER BY order_index ASC`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []model.CatalogQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// Insert adds a question at position, shifting every question at or after it
// down by one. A nil position appends.
func (s *CatalogStore) Insert(ctx context.Context, text string, position *int) (*model.CatalogQuestion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Invalid(apperr.CodeInvalidContent, "question text is required")
	}

	var id int64
	err := withTx(ctx, s.db, func(q DBTX) error {
		tx := &CatalogStore{db: q}
		count, err := tx.Count(ctx)
		if err != nil {
			return err
		}
		next := count + 1
		orderIndex := next
		if position != nil {
			orderIndex = *position
		}
		if orderIndex < 1 || orderIndex > next {
			return apperr.Invalid(apperr.CodeInvalidOrderIndex,
				fmt.Sprintf("order index must be between 1 and %d", next))
		}

		if orderIndex < next {
			if err := tx.shift(ctx, orderIndex, 1); err != nil {
				return err
			}
		}

		result, err := q.ExecContext(ctx,
			`INSERT INTO questions (text, order_index) VALUES (?, ?)`,
			text, orderIndex,
		)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// Import appends texts to the end of the catalog in order. Blank lines are skipped.
func (s *CatalogStore) Import(ctx context.Context, texts []string) ([]model.CatalogQuestion, error) {
	var ids []int64
	err := withTx(ctx, s.db, func(q DBTX) error {
		tx := &CatalogStore{db: q}
		count, err := tx.Count(ctx)
		if err != nil {
			return err
		}
		for _, text := range texts {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			count++
			result, err := q.ExecContext(ctx,
				`INSERT INTO questions (text, order_index) VALUES (?, ?)`,
				text, count,
			)
			if err != nil {
				return fmt.Errorf("import question %d: %w", count, err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	imported := make([]model.CatalogQuestion, 0, len(ids))
	for _, id := range ids {
		q, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		imported = append(imported, *q)
	}
	return imported, nil
}

// IsReferenced reports whether any family has been assigned the question.
func (s *CatalogStore) IsReferenced(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM family_questions WHERE question_id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check question in use: %w", err)
	}
	return exists, nil
}

// DeleteIfUnused removes a question that no family has been assigned and closes
// the gap it leaves in the ordering.
func (s *CatalogStore) DeleteIfUnused(ctx context.Context, id int64) error {
	return withTx(ctx, s.db, func(q DBTX) error {
		tx := &CatalogStore{db: q}
		question, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if question == nil {
			return apperr.NotFound(apperr.CodeQuestionNotFound, "question not found")
		}

		inUse, err := tx.IsReferenced(ctx, id)
		if err != nil {
			return err
		}
		if inUse {
			return apperr.Conflict(apperr.CodeQuestionInUse, "question has been assigned and cannot be deleted")
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		return tx.shift(ctx, question.OrderIndex+1, -1)
	})
}

// shift moves every order_index >= from by delta. The UNIQUE constraint on
// order_index is checked per row, so the rows pass through negative values
// first to avoid colliding with a neighbour mid-update.
func (s *CatalogStore) shift(ctx context.Context, from, delta int) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE questions SET order_index = -(order_index + ?), updated_at = CURRENT_TIMESTAMP WHERE order_index >= ?`,
		delta, from,
	); err != nil {
		return fmt.Errorf("shift order indexes: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE questions SET order_index = -order_index WHERE order_index < 0`,
	); err != nil {
		return fmt.Errorf("restore order indexes: %w", err)
	}
	return nil
}
