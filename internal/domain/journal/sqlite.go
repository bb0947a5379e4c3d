package journal

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/shared/id"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER NOT NULL,
	id           TEXT    NOT NULL,
	type         TEXT    NOT NULL,
	blueprint_id TEXT    NOT NULL,
	graph_id     TEXT    NOT NULL,
	user_id      TEXT    NOT NULL,
	timestamp    REAL    NOT NULL,
	recorded_at  REAL    NOT NULL,
	payload      BLOB
);
CREATE INDEX IF NOT EXISTS messages_recorded_at ON messages (recorded_at);
`

// SQLiteStore persists journal entries in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the journal database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Insert writes one entry.
func (s *SQLiteStore) Insert(ctx context.Context, e Entry) error {
	m := e.Message
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (seq, id, type, blueprint_id, graph_id, user_id, timestamp, recorded_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, m.ID.String(), m.Type.String(), m.BlueprintID.String(), m.GraphID.String(),
		m.UserID, m.Timestamp, e.RecordedAt, m.Payload,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest entries, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, type, blueprint_id, graph_id, user_id, timestamp, recorded_at, payload
		 FROM (SELECT * FROM messages ORDER BY recorded_at DESC, seq DESC LIMIT ?)
		 ORDER BY recorded_at ASC, seq ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                    Entry
			msgID, msgType       string
			blueprintID, graphID string
		)
		if err := rows.Scan(&e.Seq, &msgID, &msgType, &blueprintID, &graphID,
			&e.Message.UserID, &e.Message.Timestamp, &e.RecordedAt, &e.Message.Payload); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Message.ID = id.MessageID(msgID)
		if e.Message.Type, err = protocol.ParseMessageType(msgType); err != nil {
			return nil, fmt.Errorf("journal entry %d: %w", e.Seq, err)
		}
		if e.Message.BlueprintID, err = uuid.Parse(blueprintID); err != nil {
			return nil, fmt.Errorf("journal entry %d blueprint: %w", e.Seq, err)
		}
		if e.Message.GraphID, err = uuid.Parse(graphID); err != nil {
			return nil, fmt.Errorf("journal entry %d graph: %w", e.Seq, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded before the given time.
func (s *SQLiteStore) Prune(ctx context.Context, before float64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE recorded_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
