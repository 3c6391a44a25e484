package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrProjectLocked is returned by AcquireProjectLock in fail-fast mode when
// another chat already holds the lock for the project.
var ErrProjectLocked = errors.New("store: project is locked by another chat")

// ProjectLock is the advisory lock §5 requires: "chats on the same project
// are serialized at the project level by an advisory lock acquired at
// pipeline start". Postgres advisory locks are session-scoped, so this
// holds a single checked-out connection for the lock's lifetime rather than
// going through the shared pool per-statement.
type ProjectLock struct {
	conn *pgxpool.Conn
	key  int64
}

// AcquireProjectLock takes the per-project advisory lock. In ProjectLockBlock
// mode it waits for the lock; in ProjectLockFailFast mode it returns
// ErrProjectLocked immediately if another chat holds it.
func (s *Store) AcquireProjectLock(ctx context.Context, projectID string, mode config.ProjectLockMode) (*ProjectLock, error) {
	key := lockKey(projectID)

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: acquire connection for project lock: %w", err)
	}

	switch mode {
	case config.ProjectLockFailFast:
		var acquired bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
			conn.Release()
			return nil, fmt.Errorf("store: pg_try_advisory_lock: %w", err)
		}
		if !acquired {
			conn.Release()
			return nil, ErrProjectLocked
		}
	default: // ProjectLockBlock
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
			conn.Release()
			return nil, fmt.Errorf("store: pg_advisory_lock: %w", err)
		}
	}

	return &ProjectLock{conn: conn, key: key}, nil
}

// Release unlocks and returns the connection to the pool.
func (l *ProjectLock) Release(ctx context.Context) error {
	defer l.conn.Release()
	_, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	if err != nil {
		return fmt.Errorf("store: pg_advisory_unlock: %w", err)
	}
	return nil
}

// lockKey hashes a project id into the int64 keyspace pg_advisory_lock needs.
func lockKey(projectID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(projectID))
	return int64(h.Sum64())
}
