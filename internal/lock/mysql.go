package lock

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// MySQL uses named advisory locks. GET_LOCK is bound to the session, so the
// dedicated connection is held until unlock.
type MySQL struct {
	db  *sql.DB
	log *slog.Logger
}

func NewMySQL(db *sql.DB, log *slog.Logger) *MySQL {
	return &MySQL{db: db, log: log}
}

func (m *MySQL) TryLock(ctx context.Context, name string) (func(), error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve lock connection: %w", err)
	}
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 0)`, name).Scan(&got); err != nil {
		conn.Close()
		return nil, fmt.Errorf("get lock %s: %w", name, err)
	}
	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return nil, ErrNotAcquired
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(ctx, `DO RELEASE_LOCK(?)`, name); err != nil && m.log != nil {
			m.log.Error("release mysql lock", "lock", name, "err", err)
		}
		conn.Close()
	}, nil
}
