package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// registryLockKey is the advisory lock key guarding sirene_etablissements.
const registryLockKey int64 = 0x5149_5245_4e45

// TryLockRegistry takes the session-level advisory lock on a dedicated pooled
// connection, which stays checked out until unlock is called.
func (s *Store) TryLockRegistry(ctx context.Context, exclusive bool) (func(), bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}

	lockFn, unlockFn := "pg_try_advisory_lock_shared", "pg_advisory_unlock_shared"
	if exclusive {
		lockFn, unlockFn = "pg_try_advisory_lock", "pg_advisory_unlock"
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT "+lockFn+"($1)", registryLockKey).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try registry lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, "SELECT "+unlockFn+"($1)", registryLockKey); err != nil {
			// The lock dies with the session; drop the connection instead of
			// returning it to the pool still holding the lock.
			slog.Warn("registry unlock failed, closing connection", "error", err)
			conn.Conn().Close(ctx)
		}
		conn.Release()
	}
	return unlock, true, nil
}
