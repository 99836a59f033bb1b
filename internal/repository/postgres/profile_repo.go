// internal/repository/postgres/profile_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"unitevol-service/internal/domain/auth"
	xerrors "unitevol-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

type ProfileRepository struct {
	db *DB
}

func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// roleTable resolves the quoted role-specific table of a role.
func roleTable(role auth.Role) (string, error) {
	table, ok := auth.RoleProfileTables[role]
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", xerrors.ErrValidation, role)
	}
	return pq.QuoteIdentifier(table), nil
}

// GetProfile reads a profile together with its role-specific details.
func (r *ProfileRepository) GetProfile(ctx context.Context, id string) (*auth.Profile, error) {
	var p auth.Profile
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, role, full_name, email, profile_status, location, bio,
		       phone, avatar_url, is_active, created_at, updated_at
		FROM user_profiles
		WHERE id = $1`, id).Scan(
		&p.ID, &p.Role, &p.DisplayName, &p.Email, &p.ProfileStatus, &p.Location, &p.Bio,
		&p.Phone, &p.AvatarURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	table, err := roleTable(p.Role)
	if err != nil {
		return nil, err
	}

	var details []byte
	err = r.db.pool.QueryRow(ctx, fmt.Sprintf(`SELECT details FROM %s WHERE id = $1`, table), id).Scan(&details)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get role details: %w", err)
	case len(details) > 0:
		if err := json.Unmarshal(details, &p.RoleFields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal role details: %w", err)
		}
	}

	return &p, nil
}

// UpdateProfile writes the non-nil fields of patch. Role and review status
// are never written.
func (r *ProfileRepository) UpdateProfile(ctx context.Context, id string, patch auth.ProfilePatch) error {
	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.DisplayName != nil {
		add("full_name", *patch.DisplayName)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.Bio != nil {
		add("bio", *patch.Bio)
	}
	if patch.Phone != nil {
		add("phone", *patch.Phone)
	}
	if patch.AvatarURL != nil {
		add("avatar_url", *patch.AvatarURL)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE user_profiles SET %s, updated_at = NOW() WHERE id = $%d`,
		strings.Join(sets, ", "), len(args))

	tag, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpsertRoleDetails merges fields into the role-specific record of id.
func (r *ProfileRepository) UpsertRoleDetails(ctx context.Context, role auth.Role, id string, fields map[string]interface{}) error {
	table, err := roleTable(role)
	if err != nil {
		return err
	}

	details, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal role details: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, details, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET details = %[1]s.details || EXCLUDED.details, updated_at = NOW()`, table)

	if _, err := r.db.pool.Exec(ctx, query, id, details); err != nil {
		return fmt.Errorf("failed to upsert role details: %w", err)
	}
	return nil
}

// ReplaceSkills swaps the full skill list of a user.
func (r *ProfileRepository) ReplaceSkills(ctx context.Context, userID string, skills []auth.Skill) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_skills WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to clear skills: %w", err)
		}

		batch := &pgx.Batch{}
		for _, s := range skills {
			level := s.Level
			if level == "" {
				level = auth.SkillBeginner
			}
			batch.Queue(`
				INSERT INTO user_skills (user_id, skill_name, skill_level, years_of_experience)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (user_id, skill_name) DO UPDATE
				SET skill_level = EXCLUDED.skill_level, years_of_experience = EXCLUDED.years_of_experience`,
				userID, s.Name, string(level), s.YearsOfExperience)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert skills: %w", err)
		}
		return nil
	})
}

// ListSkills returns a user's skills ordered by name.
func (r *ProfileRepository) ListSkills(ctx context.Context, userID string) ([]auth.Skill, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT skill_name, skill_level, years_of_experience
		FROM user_skills
		WHERE user_id = $1
		ORDER BY skill_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	skills := []auth.Skill{}
	for rows.Next() {
		var s auth.Skill
		if err := rows.Scan(&s.Name, &s.Level, &s.YearsOfExperience); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}

// UpsertAvailability stores the availability of a user.
func (r *ProfileRepository) UpsertAvailability(ctx context.Context, userID string, a *auth.Availability) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO user_availability (user_id, days, hours_per_week, remote, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET days = EXCLUDED.days, hours_per_week = EXCLUDED.hours_per_week,
		    remote = EXCLUDED.remote, is_active = EXCLUDED.is_active, updated_at = NOW()
		RETURNING updated_at`,
		userID, pq.Array(a.Days), a.HoursPerWeek, a.Remote, a.IsActive,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert availability: %w", err)
	}
	return nil
}

// GetAvailability returns the active availability of a user.
func (r *ProfileRepository) GetAvailability(ctx context.Context, userID string) (*auth.Availability, error) {
	var a auth.Availability
	err := r.db.pool.QueryRow(ctx, `
		SELECT days, hours_per_week, remote, is_active, updated_at
		FROM user_availability
		WHERE user_id = $1 AND is_active = TRUE`, userID).Scan(
		pq.Array(&a.Days), &a.HoursPerWeek, &a.Remote, &a.IsActive, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}
	return &a, nil
}

// CountSkills returns how many skills a user has listed.
func (r *ProfileRepository) CountSkills(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_skills WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count skills: %w", err)
	}
	return n, nil
}
