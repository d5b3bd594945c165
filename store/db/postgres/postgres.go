package postgres

import (
	"context"
	"database/sql"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL database specified by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	postgresDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	return &DB{db: postgresDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS conversation (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL DEFAULT 'manual',
		pinned BOOLEAN NOT NULL DEFAULT FALSE,
		messages JSONB NOT NULL DEFAULT '[]',
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vfs_node (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS memory (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data JSONB NOT NULL
	)`,
}

func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to run migration")
		}
	}
	return nil
}

func (d *DB) UpsertConversation(ctx context.Context, record *store.ConversationRecord) error {
	stmt := `
		INSERT INTO conversation (id, title, mode, pinned, messages, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			mode = EXCLUDED.mode,
			pinned = EXCLUDED.pinned,
			messages = EXCLUDED.messages,
			updated_ts = EXCLUDED.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt,
		record.ID, record.Title, record.Mode, record.Pinned,
		string(record.MessagesJSON), record.CreatedTs, record.UpdatedTs,
	); err != nil {
		return errors.Wrap(err, "failed to upsert conversation")
	}
	return nil
}

func (d *DB) ListConversations(ctx context.Context) ([]*store.ConversationRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, title, mode, pinned, messages, created_ts, updated_ts
		FROM conversation
		ORDER BY updated_ts DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := make([]*store.ConversationRecord, 0)
	for rows.Next() {
		record := &store.ConversationRecord{}
		var messages string
		if err := rows.Scan(&record.ID, &record.Title, &record.Mode, &record.Pinned,
			&messages, &record.CreatedTs, &record.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		record.MessagesJSON = []byte(messages)
		list = append(list, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversations")
	}
	return list, nil
}

func (d *DB) DeleteConversation(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM conversation WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	return nil
}

func (d *DB) UpsertVFSNode(ctx context.Context, node *store.VFSNode) error {
	stmt := `
		INSERT INTO vfs_node (id, parent_id, name, kind, content, mime_type, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			name = EXCLUDED.name,
			content = EXCLUDED.content,
			mime_type = EXCLUDED.mime_type,
			updated_ts = EXCLUDED.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt,
		node.ID, node.ParentID, node.Name, string(node.Kind),
		node.Content, node.MimeType, node.CreatedTs, node.UpdatedTs,
	); err != nil {
		return errors.Wrap(err, "failed to upsert vfs node")
	}
	return nil
}

func (d *DB) ListVFSNodes(ctx context.Context) ([]*store.VFSNode, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, parent_id, name, kind, content, mime_type, created_ts, updated_ts
		FROM vfs_node
		ORDER BY created_ts ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list vfs nodes")
	}
	defer rows.Close()

	list := make([]*store.VFSNode, 0)
	for rows.Next() {
		node := &store.VFSNode{}
		var kind string
		if err := rows.Scan(&node.ID, &node.ParentID, &node.Name, &kind,
			&node.Content, &node.MimeType, &node.CreatedTs, &node.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan vfs node")
		}
		node.Kind = store.VFSNodeKind(kind)
		list = append(list, node)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate vfs nodes")
	}
	return list, nil
}

func (d *DB) DeleteVFSNode(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM vfs_node WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete vfs node")
	}
	return nil
}

func (d *DB) UpsertMemory(ctx context.Context, memory *store.Memory) error {
	stmt := `
		INSERT INTO memory (id, content, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			updated_ts = EXCLUDED.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt,
		memory.ID, memory.Content, memory.CreatedTs, memory.UpdatedTs,
	); err != nil {
		return errors.Wrap(err, "failed to upsert memory")
	}
	return nil
}

func (d *DB) ListMemories(ctx context.Context) ([]*store.Memory, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, content, created_ts, updated_ts
		FROM memory
		ORDER BY created_ts ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memories")
	}
	defer rows.Close()

	list := make([]*store.Memory, 0)
	for rows.Next() {
		memory := &store.Memory{}
		if err := rows.Scan(&memory.ID, &memory.Content, &memory.CreatedTs, &memory.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory")
		}
		list = append(list, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate memories")
	}
	return list, nil
}

func (d *DB) DeleteMemory(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM memory WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete memory")
	}
	return nil
}

func (d *DB) GetSettings(ctx context.Context) ([]byte, error) {
	var data string
	err := d.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get settings")
	}
	return []byte(data), nil
}

func (d *DB) PutSettings(ctx context.Context, data []byte) error {
	stmt := `
		INSERT INTO settings (id, data) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`
	if _, err := d.db.ExecContext(ctx, stmt, string(data)); err != nil {
		return errors.Wrap(err, "failed to put settings")
	}
	return nil
}
