package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/finassist/internal/models"
)

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, COALESCE(name, ''), email, plan, questions_used, usage_reset_at, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*models.Profile, error) {
	var p models.Profile
	var resetAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Plan, &p.QuestionsUsed, &resetAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if resetAt.Valid {
		p.UsageResetAt = &resetAt.Time
	}
	return &p, nil
}

func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return p, nil
}

// Ensure inserts the profile when absent and returns the stored row.
func (r *ProfileRepository) Ensure(ctx context.Context, id, email, name string) (*models.Profile, error) {
	const query = `
INSERT INTO profiles (id, name, email, plan, questions_used)
VALUES (?, NULLIF(?, ''), ?, ?, 0)
ON DUPLICATE KEY UPDATE email = VALUES(email)`
	if _, err := r.db.ExecContext(ctx, query, id, name, email, models.PlanFree); err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	p, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("ensure profile: row %s missing after insert", id)
	}
	return p, nil
}

func (r *ProfileRepository) UpdateName(ctx context.Context, id, name string) error {
	const query = `UPDATE profiles SET name = NULLIF(?, ''), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, name, id); err != nil {
		return fmt.Errorf("update profile name: %w", err)
	}
	return nil
}

// SetPlan switches the plan and starts a fresh usage period.
func (r *ProfileRepository) SetPlan(ctx context.Context, id string, plan models.PlanName) error {
	const query = `UPDATE profiles SET plan = ?, questions_used = 0, usage_reset_at = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, plan, id); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}

// ReserveQuestion counts one question against the profile. With limit > 0 the
// increment only happens while questions_used < limit, so concurrent requests
// can never push usage past the ceiling. It reports whether a slot was taken.
func (r *ProfileRepository) ReserveQuestion(ctx context.Context, id string, limit int) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		const query = `
UPDATE profiles SET questions_used = questions_used + 1, updated_at = NOW()
WHERE id = ? AND questions_used < ?`
		res, err = r.db.ExecContext(ctx, query, id, limit)
	} else {
		const query = `UPDATE profiles SET questions_used = questions_used + 1, updated_at = NOW() WHERE id = ?`
		res, err = r.db.ExecContext(ctx, query, id)
	}
	if err != nil {
		return false, fmt.Errorf("reserve question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReleaseQuestion gives back a slot taken by ReserveQuestion.
func (r *ProfileRepository) ReleaseQuestion(ctx context.Context, id string) error {
	const query = `
UPDATE profiles SET questions_used = questions_used - 1, updated_at = NOW()
WHERE id = ? AND questions_used > 0`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("release question: %w", err)
	}
	return nil
}

func (r *ProfileRepository) ResetUsage(ctx context.Context, id string) error {
	const query = `UPDATE profiles SET questions_used = 0, usage_reset_at = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}

// ResetAllUsage starts a new usage period for every profile and returns how many were touched.
func (r *ProfileRepository) ResetAllUsage(ctx context.Context) (int64, error) {
	const query = `UPDATE profiles SET questions_used = 0, usage_reset_at = NOW() WHERE questions_used > 0`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset all usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rows affected: %w", err)
	}
	return affected, nil
}

func (r *ProfileRepository) List(ctx context.Context, plan models.PlanName, limit, offset int) ([]models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`
	args := []any{}
	if plan != "" {
		query += ` WHERE plan = ?`
		args = append(args, plan)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}
