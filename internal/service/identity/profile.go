// internal/service/identity/profile.go
package identity

import (
	"context"
	"errors"
	"fmt"

	"unitevol-service/internal/domain/auth"
	xerrors "unitevol-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// ProfileStore persists profiles and their satellite records.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*auth.Profile, error)
	UpdateProfile(ctx context.Context, id string, patch auth.ProfilePatch) error
	UpsertRoleDetails(ctx context.Context, role auth.Role, id string, fields map[string]interface{}) error
	ReplaceSkills(ctx context.Context, userID string, skills []auth.Skill) error
	ListSkills(ctx context.Context, userID string) ([]auth.Skill, error)
	UpsertAvailability(ctx context.Context, userID string, a *auth.Availability) error
	GetAvailability(ctx context.Context, userID string) (*auth.Availability, error)
	CountSkills(ctx context.Context, userID string) (int, error)
}

// GetProfile returns the profile of id.
func (s *Service) GetProfile(ctx context.Context, id string) (*auth.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, id)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrProfileFetchFailed, err)
	}
	return profile, nil
}

// UpdateProfile writes the non-nil fields of patch and returns the stored
// profile. Role and review status are never written.
func (s *Service) UpdateProfile(ctx context.Context, id string, patch auth.ProfilePatch) (*auth.Profile, error) {
	if patch.Role != nil || patch.ProfileStatus != nil {
		s.logger.Warn("ignoring protected fields in profile patch", zap.String("principal_id", id))
	}
	patch = patch.SelfService()

	if patch.DisplayName != nil && *patch.DisplayName == "" {
		return nil, fmt.Errorf("%w: full_name cannot be empty", xerrors.ErrValidation)
	}
	if err := checkLengths(patch); err != nil {
		return nil, err
	}

	if err := s.profiles.UpdateProfile(ctx, id, patch); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", xerrors.ErrProfileUpdateFailed, err)
	}
	return s.GetProfile(ctx, id)
}

// UpdateRoleDetails upserts the role-specific record of id. The role must
// be the profile's own role.
func (s *Service) UpdateRoleDetails(ctx context.Context, id string, role auth.Role, fields map[string]interface{}) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", xerrors.ErrValidation, role)
	}

	profile, err := s.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if profile.Role != role {
		return fmt.Errorf("%w: role %q does not match profile role %q", xerrors.ErrValidation, role, profile.Role)
	}

	if err := s.profiles.UpsertRoleDetails(ctx, role, id, fields); err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrProfileUpdateFailed, err)
	}
	return nil
}

// ========== Skills & availability ==========

func (s *Service) UpdateSkills(ctx context.Context, id string, skills []auth.Skill) error {
	seen := make(map[string]bool, len(skills))
	for i := range skills {
		if skills[i].Name == "" {
			return fmt.Errorf("%w: skill_name is required", xerrors.ErrValidation)
		}
		if seen[skills[i].Name] {
			return fmt.Errorf("%w: duplicate skill %q", xerrors.ErrValidation, skills[i].Name)
		}
		seen[skills[i].Name] = true
		if skills[i].Level == "" {
			skills[i].Level = auth.SkillBeginner
		}
	}

	if err := s.profiles.ReplaceSkills(ctx, id, skills); err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrProfileUpdateFailed, err)
	}
	return nil
}

func (s *Service) ListSkills(ctx context.Context, id string) ([]auth.Skill, error) {
	skills, err := s.profiles.ListSkills(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrProfileFetchFailed, err)
	}
	return skills, nil
}

func (s *Service) UpdateAvailability(ctx context.Context, id string, a *auth.Availability) error {
	if a.HoursPerWeek < 0 || a.HoursPerWeek > 168 {
		return fmt.Errorf("%w: hours_per_week must be between 0 and 168", xerrors.ErrValidation)
	}
	if err := s.profiles.UpsertAvailability(ctx, id, a); err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrProfileUpdateFailed, err)
	}
	return nil
}

func (s *Service) GetAvailability(ctx context.Context, id string) (*auth.Availability, error) {
	a, err := s.profiles.GetAvailability(ctx, id)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrProfileFetchFailed, err)
	}
	return a, nil
}

// IsProfileComplete reports whether id has a display name, has not been
// rejected, and has filled in either its role details or at least one skill.
func (s *Service) IsProfileComplete(ctx context.Context, id string) (bool, error) {
	profile, err := s.GetProfile(ctx, id)
	if err != nil {
		return false, err
	}
	if profile.DisplayName == "" || profile.ProfileStatus == auth.ProfileStatusRejected {
		return false, nil
	}
	if len(profile.RoleFields) > 0 {
		return true, nil
	}

	n, err := s.profiles.CountSkills(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: %v", xerrors.ErrProfileFetchFailed, err)
	}
	return n > 0, nil
}

// checkLengths enforces the byte limits of the free-text columns before the
// write reaches the database.
func checkLengths(patch auth.ProfilePatch) error {
	fields := []struct {
		name  string
		value *string
		max   int
	}{
		{"full_name", patch.DisplayName, auth.MaxFullNameBytes},
		{"email", patch.Email, auth.MaxEmailBytes},
		{"location", patch.Location, auth.MaxLocationBytes},
		{"bio", patch.Bio, auth.MaxBioBytes},
		{"phone", patch.Phone, auth.MaxPhoneBytes},
		{"avatar_url", patch.AvatarURL, auth.MaxAvatarURLBytes},
	}
	for _, f := range fields {
		if f.value != nil && len(*f.value) > f.max {
			return fmt.Errorf("%w: %s is longer than %d bytes", xerrors.ErrValidation, f.name, f.max)
		}
	}
	return nil
}
