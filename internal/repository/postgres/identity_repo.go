// internal/repository/postgres/identity_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unitevol-service/internal/domain/auth"
	xerrors "unitevol-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

const lockAfterFailedAttempts = 5

type IdentityRepository struct {
	db *DB
}

func NewIdentityRepository(db *DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// ========== Credentials ==========

const credentialColumns = `
	principal_id, email, password_hash, status,
	failed_login_attempts, locked_until, last_login, created_at`

func scanCredential(row pgx.Row) (*auth.Credential, error) {
	var c auth.Credential
	err := row.Scan(
		&c.PrincipalID, &c.Email, &c.PasswordHash, &c.Status,
		&c.FailedLoginAttempts, &c.LockedUntil, &c.LastLogin, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	return &c, nil
}

// FindCredentialByEmail retrieves a credential by email, case-insensitively
func (r *IdentityRepository) FindCredentialByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM auth_credentials WHERE LOWER(email) = LOWER($1)`
	return scanCredential(r.db.pool.QueryRow(ctx, query, email))
}

// FindCredentialByID retrieves a credential by principal id
func (r *IdentityRepository) FindCredentialByID(ctx context.Context, principalID string) (*auth.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM auth_credentials WHERE principal_id = $1`
	return scanCredential(r.db.pool.QueryRow(ctx, query, principalID))
}

// CreateAccount inserts the credential and its seeded profile in one
// transaction. A taken email yields ErrDuplicateAccount.
func (r *IdentityRepository) CreateAccount(ctx context.Context, cred *auth.Credential, profile *auth.Profile) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO auth_credentials (principal_id, email, password_hash, status)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at`,
			cred.PrincipalID, cred.Email, cred.PasswordHash, cred.Status,
		).Scan(&cred.CreatedAt); err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
			INSERT INTO user_profiles (id, role, full_name, email, profile_status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING is_active, created_at, updated_at`,
			profile.ID, profile.Role, profile.DisplayName, profile.Email, profile.ProfileStatus,
		).Scan(&profile.IsActive, &profile.CreatedAt, &profile.UpdatedAt)
	})
	if isUniqueViolation(err) {
		return xerrors.ErrDuplicateAccount
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpdateLastLogin records a successful login and clears the lockout
func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, principalID string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE auth_credentials
		SET last_login = $1, failed_login_attempts = 0, locked_until = NULL
		WHERE principal_id = $2`, time.Now(), principalID)
	return err
}

// IncrementFailedLoginAttempts counts a failed password and locks the
// credential for lockDuration once the threshold is reached.
func (r *IdentityRepository) IncrementFailedLoginAttempts(ctx context.Context, principalID string, lockDuration time.Duration) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE auth_credentials
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $1 THEN $2
		        ELSE NULL
		    END
		WHERE principal_id = $3`, lockAfterFailedAttempts, time.Now().Add(lockDuration), principalID)
	return err
}
