// internal/repository/postgres/profile_listener.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"unitevol-service/internal/domain/auth"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ProfileChangesChannel is the NOTIFY channel fed by the user_profiles trigger.
const ProfileChangesChannel = "profile_changes"

const maxListenBackoff = 30 * time.Second

// ProfileLoader reads a profile back when a notification only names the
// changed columns.
type ProfileLoader interface {
	GetProfile(ctx context.Context, id string) (*auth.Profile, error)
}

// ProfileListener turns NOTIFY payloads on ProfileChangesChannel into
// auth.ProfileChange values.
type ProfileListener struct {
	pool     *pgxpool.Pool
	profiles ProfileLoader
	logger   *zap.Logger
}

func NewProfileListener(pool *pgxpool.Pool, profiles ProfileLoader, logger *zap.Logger) *ProfileListener {
	return &ProfileListener{pool: pool, profiles: profiles, logger: logger}
}

// Run listens until ctx is done, reconnecting with backoff when the
// dedicated connection drops. Events are passed to handle in commit order.
func (l *ProfileListener) Run(ctx context.Context, handle func(auth.ProfileChange)) {
	backoff := time.Second
	for {
		err := l.listen(ctx, handle)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("profile listener disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxListenBackoff {
			backoff = maxListenBackoff
		}
	}
}

func (l *ProfileListener) listen(ctx context.Context, handle func(auth.ProfileChange)) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		// The connection goes back to the pool; it must not keep listening.
		unlistenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn.Exec(unlistenCtx, "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+ProfileChangesChannel); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	l.logger.Info("listening for profile changes", zap.String("channel", ProfileChangesChannel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		change, err := ParseProfileNotification(n.Payload)
		if err != nil {
			l.logger.Error("dropping malformed profile notification", zap.Error(err))
			continue
		}
		if change, err = ResolveProfileChange(ctx, l.profiles, change); err != nil {
			l.logger.Error("dropping unresolved profile notification",
				zap.String("principal_id", change.PrincipalID),
				zap.Error(err),
			)
			continue
		}
		handle(change)
	}
}

// ParseProfileNotification decodes a trigger payload.
func ParseProfileNotification(payload string) (auth.ProfileChange, error) {
	var change auth.ProfileChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return auth.ProfileChange{}, fmt.Errorf("invalid profile notification: %w", err)
	}
	if change.PrincipalID == "" {
		return auth.ProfileChange{}, fmt.Errorf("profile notification has no id")
	}
	if change.EventType == "" {
		change.EventType = auth.ChangeUpdate
	}
	return change, nil
}

// ResolveProfileChange fills New from the stored row when the notification
// only named the changed columns. Other changes are returned as they are.
func ResolveProfileChange(ctx context.Context, profiles ProfileLoader, change auth.ProfileChange) (auth.ProfileChange, error) {
	if len(change.Columns) == 0 {
		return change, nil
	}

	profile, err := profiles.GetProfile(ctx, change.PrincipalID)
	if err != nil {
		return change, fmt.Errorf("failed to read back profile: %w", err)
	}
	change.New = profile.PatchFor(change.Columns)
	change.Columns = nil
	return change, nil
}
