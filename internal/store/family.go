package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/familyq/internal/model"
)

// FamilyStore persists families and their member rosters.
type FamilyStore struct {
	db DBTX
}

func NewFamilyStore(db DBTX) *FamilyStore {
	return &FamilyStore{db: db}
}

func (s *FamilyStore) WithTx(tx *sql.Tx) *FamilyStore {
	return &FamilyStore{db: tx}
}

func scanFamily(sc scanner) (*model.Family, error) {
	var f model.Family
	err := sc.Scan(&f.ID, &f.Name, &f.QuestionsStarted, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanMember(sc scanner) (*model.Member, error) {
	var m model.Member
	var familyID sql.NullInt64
	err := sc.Scan(&m.ID, &familyID, &m.Name, &m.Role, &m.BirthYear, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if familyID.Valid {
		m.FamilyID = &familyID.Int64
	}
	return &m, nil
}

const familyCols = `id, name, questions_started, created_at, updated_at`
const memberCols = `id, family_id, name, role, birth_year, created_at, updated_at`

func (s *FamilyStore) Create(ctx context.Context, name string) (*model.Family, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO families (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *FamilyStore) GetByID(ctx context.Context, id int64) (*model.Family, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

func (s *FamilyStore) List(ctx context.Context) ([]model.Family, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+familyCols+` FROM families ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	defer rows.Close()

	var families []model.Family
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		families = append(families, *f)
	}
	return families, rows.Err()
}

// ListStartedIDs returns the ids of families whose question cycle has begun.
func (s *FamilyStore) ListStartedIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM families WHERE questions_started = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list started families: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *FamilyStore) SetQuestionsStarted(ctx context.Context, id int64, started bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE families SET questions_started = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		started, id,
	)
	if err != nil {
		return fmt.Errorf("set questions started: %w", err)
	}
	return nil
}

// CreateMember creates a member that does not belong to any family yet.
func (s *FamilyStore) CreateMember(ctx context.Context, name string, role model.Role, birthYear int) (*model.Member, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO members (name, role, birth_year) VALUES (?, ?, ?)`,
		name, role, birthYear,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetMember(ctx, id)
}

// AddMember creates a member directly on familyID's roster.
func (s *FamilyStore) AddMember(ctx context.Context, familyID int64, name string, role model.Role, birthYear int) (*model.Member, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO members (family_id, name, role, birth_year) VALUES (?, ?, ?, ?)`,
		familyID, name, role, birthYear,
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetMember(ctx, id)
}

// AssignMember moves an existing member onto familyID's roster.
func (s *FamilyStore) AssignMember(ctx context.Context, memberID, familyID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET family_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		familyID, memberID,
	)
	if err != nil {
		return fmt.Errorf("assign member: %w", err)
	}
	return nil
}

// RemoveMember takes a member off their family's roster. Their answers stay.
func (s *FamilyStore) RemoveMember(ctx context.Context, memberID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET family_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		memberID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *FamilyStore) GetMember(ctx context.Context, id int64) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// Members returns the current roster of a family in join order.
func (s *FamilyStore) Members(ctx context.Context, familyID int64) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberCols+` FROM members WHERE family_id = ? ORDER BY id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// Size returns the number of members currently on a family's roster.
func (s *FamilyStore) Size(ctx context.Context, familyID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE family_id = ?`, familyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}
