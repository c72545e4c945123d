package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the bootstrap DDL. It is idempotent and does not migrate existing tables.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	display_name TEXT,
	username     TEXT,
	name         TEXT,
	email        TEXT,
	avatar_url   TEXT,
	image        TEXT,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS projects (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	slug          TEXT NOT NULL UNIQUE,
	description   TEXT NOT NULL DEFAULT '',
	created_by_id TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	deleted_at    DATETIME
);

CREATE TABLE IF NOT EXISTS project_members (
	project_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT 'member',
	hidden_at  DATETIME,
	joined_at  DATETIME NOT NULL,
	PRIMARY KEY (project_id, user_id),
	FOREIGN KEY (project_id) REFERENCES projects(id)
);

CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	deleted_at DATETIME,
	FOREIGN KEY (project_id) REFERENCES projects(id)
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	role      TEXT NOT NULL DEFAULT 'member',
	hidden_at DATETIME,
	joined_at DATETIME NOT NULL,
	PRIMARY KEY (room_id, user_id),
	FOREIGN KEY (room_id) REFERENCES rooms(id)
);

CREATE TABLE IF NOT EXISTS messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	room_id    TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'TEXT',
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (room_id) REFERENCES rooms(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at, seq);
CREATE INDEX IF NOT EXISTS idx_room_members_user ON room_members(user_id);
CREATE INDEX IF NOT EXISTS idx_project_members_user ON project_members(user_id);
`

// ApplySchema creates missing tables and indexes.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
