package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vovakirdan/teamchat-server/internal/store"
	"github.com/vovakirdan/teamchat-server/internal/utils"
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
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS projects (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	slug          TEXT NOT NULL UNIQUE,
	description   TEXT NOT NULL DEFAULT '',
	created_by_id TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	deleted_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS project_members (
	project_id TEXT NOT NULL REFERENCES projects(id),
	user_id    TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT 'member',
	hidden_at  TIMESTAMPTZ,
	joined_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (project_id, user_id)
);

CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   TEXT NOT NULL REFERENCES rooms(id),
	user_id   TEXT NOT NULL,
	role      TEXT NOT NULL DEFAULT 'member',
	hidden_at TIMESTAMPTZ,
	joined_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	room_id    TEXT NOT NULL REFERENCES rooms(id),
	sender_id  TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'TEXT',
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at, seq);
CREATE INDEX IF NOT EXISTS idx_room_members_user ON room_members(user_id);
CREATE INDEX IF NOT EXISTS idx_project_members_user ON project_members(user_id);
`

// codeUniqueViolation is the SQLSTATE for unique_violation.
const codeUniqueViolation = "23505"

// Options tunes the connection pool.
type Options struct {
	MaxConns   int32
	AutoSchema bool
}

// PostgresStore implements store.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and optionally applies the bootstrap schema.
func New(ctx context.Context, databaseURL string, opts Options) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if opts.AutoSchema {
		if err := s.ApplySchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// ApplySchema creates missing tables and indexes.
func (s *PostgresStore) ApplySchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ==== UserStore implementation ====

// EnsureUser inserts the user if no row with the same ID exists.
func (s *PostgresStore) EnsureUser(ctx context.Context, user *store.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, username, name, email, avatar_url, image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		user.ID, user.DisplayName, user.Username, user.Name, user.Email, user.AvatarURL, user.Image, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateUser inserts a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, user *store.User) error {
	if user.ID == "" {
		user.ID = utils.NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, username, name, email, avatar_url, image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.DisplayName, user.Username, user.Name, user.Email, user.AvatarURL, user.Image, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.ID, store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	var user store.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, username, name, email, avatar_url, image, created_at
		FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.DisplayName, &user.Username, &user.Name, &user.Email, &user.AvatarURL, &user.Image, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== RoomStore implementation ====

// IsMember checks if user is a member of a live room.
func (s *PostgresStore) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM room_members rm
			JOIN rooms r ON r.id = rm.room_id
			JOIN projects p ON p.id = r.project_id
			WHERE rm.user_id = $1 AND rm.room_id = $2
			  AND r.deleted_at IS NULL AND p.deleted_at IS NULL
		)`, userID, roomID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return exists, nil
}

// CreateRoom inserts the room and the creator's membership atomically.
func (s *PostgresStore) CreateRoom(ctx context.Context, room *store.Room, creatorID string, role store.MemberRole) error {
	if room.ID == "" {
		room.ID = utils.NewID()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO rooms (id, project_id, name, created_at) VALUES ($1, $2, $3, $4)`,
			room.ID, room.ProjectID, room.Name, room.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
			room.ID, creatorID, string(role), room.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert room member: %w", err)
		}
		return nil
	})
}

// AddRoomMember grants room access and joins the room's project as a member.
func (s *PostgresStore) AddRoomMember(ctx context.Context, roomID, userID string, role store.MemberRole) error {
	room, err := s.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO project_members (project_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (project_id, user_id) DO NOTHING`,
			room.ProjectID, userID, string(store.RoleMember), now,
		); err != nil {
			return fmt.Errorf("insert project member: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO room_members (room_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (room_id, user_id) DO NOTHING`,
			roomID, userID, string(role), now,
		); err != nil {
			return fmt.Errorf("insert room member: %w", err)
		}
		return nil
	})
}

// GetRoomByID retrieves a room by ID.
func (s *PostgresStore) GetRoomByID(ctx context.Context, id string) (*store.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `
		SELECT id, project_id, name, created_at, deleted_at
		FROM rooms WHERE id = $1`, id))
}

// GetRoomForMember retrieves a live room the user is a member of.
func (s *PostgresStore) GetRoomForMember(ctx context.Context, roomID, userID string) (*store.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `
		SELECT r.id, r.project_id, r.name, r.created_at, r.deleted_at
		FROM rooms r
		JOIN projects p ON p.id = r.project_id
		JOIN room_members rm ON rm.room_id = r.id
		WHERE r.id = $1 AND rm.user_id = $2
		  AND r.deleted_at IS NULL AND p.deleted_at IS NULL`, roomID, userID))
}

func scanRoom(row pgx.Row) (*store.Room, error) {
	var room store.Room
	if err := row.Scan(&room.ID, &room.ProjectID, &room.Name, &room.CreatedAt, &room.DeletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return &room, nil
}

// GetRoomMember retrieves a membership row.
func (s *PostgresStore) GetRoomMember(ctx context.Context, roomID, userID string) (*store.RoomMember, error) {
	var m store.RoomMember
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT room_id, user_id, role, hidden_at, joined_at
		FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID,
	).Scan(&m.RoomID, &m.UserID, &role, &m.HiddenAt, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room member: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room member: %w", err)
	}
	m.Role = store.MemberRole(role)
	return &m, nil
}

// SoftDeleteRoom marks the room deleted.
func (s *PostgresStore) SoftDeleteRoom(ctx context.Context, roomID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rooms SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`, at.UTC(), roomID)
	if err != nil {
		return fmt.Errorf("soft delete room: %w", err)
	}
	return requireAffected(tag, "room")
}

// SetRoomHidden sets or clears the hidden marker of a membership.
func (s *PostgresStore) SetRoomHidden(ctx context.Context, roomID, userID string, hiddenAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE room_members SET hidden_at = $1 WHERE room_id = $2 AND user_id = $3`,
		hiddenAt, roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("update room visibility: %w", err)
	}
	return requireAffected(tag, "room member")
}

// ==== ProjectStore implementation ====

// HasProjectMembership reports whether the user belongs to any project.
func (s *PostgresStore) HasProjectMembership(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM project_members WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query project membership: %w", err)
	}
	return exists, nil
}

// CreateProjectWithRooms inserts a project owned by ownerID along with seed rooms.
func (s *PostgresStore) CreateProjectWithRooms(ctx context.Context, project *store.Project, ownerID string, rooms []store.SeedRoom) error {
	now := time.Now().UTC()
	if project.ID == "" {
		project.ID = utils.NewID()
	}
	project.CreatedByID = ownerID
	project.CreatedAt = now
	project.UpdatedAt = now

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO projects (id, name, slug, description, created_by_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			project.ID, project.Name, project.Slug, project.Description, ownerID, now, now,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("project slug %q: %w", project.Slug, store.ErrConflict)
			}
			return fmt.Errorf("insert project: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO project_members (project_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
			project.ID, ownerID, string(store.RoleOwner), now,
		); err != nil {
			return fmt.Errorf("insert project member: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range rooms {
			seed := &rooms[i]
			roomID := utils.NewID()
			seed.ID = roomID
			createdAt := now.Add(time.Duration(i) * time.Millisecond)
			batch.Queue(`INSERT INTO rooms (id, project_id, name, created_at) VALUES ($1, $2, $3, $4)`,
				roomID, project.ID, seed.Name, createdAt)
			batch.Queue(`INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
				roomID, ownerID, string(seed.Role), createdAt)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert seed rooms: %w", err)
		}
		return nil
	})
}

// GetProjectMember retrieves a membership in a live project.
func (s *PostgresStore) GetProjectMember(ctx context.Context, projectID, userID string) (*store.ProjectMember, error) {
	var m store.ProjectMember
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT pm.project_id, pm.user_id, pm.role, pm.hidden_at, pm.joined_at
		FROM project_members pm
		JOIN projects p ON p.id = pm.project_id
		WHERE pm.project_id = $1 AND pm.user_id = $2 AND p.deleted_at IS NULL`, projectID, userID,
	).Scan(&m.ProjectID, &m.UserID, &role, &m.HiddenAt, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("project member: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query project member: %w", err)
	}
	m.Role = store.MemberRole(role)
	return &m, nil
}

// SetProjectHidden sets or clears the hidden marker of a project membership.
func (s *PostgresStore) SetProjectHidden(ctx context.Context, projectID, userID string, hiddenAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE project_members pm SET hidden_at = $1
		FROM projects p
		WHERE p.id = pm.project_id AND p.deleted_at IS NULL
		  AND pm.project_id = $2 AND pm.user_id = $3`,
		hiddenAt, projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("update project visibility: %w", err)
	}
	return requireAffected(tag, "project member")
}

// SoftDeleteProject marks the project deleted.
func (s *PostgresStore) SoftDeleteProject(ctx context.Context, projectID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		at.UTC(), projectID,
	)
	if err != nil {
		return fmt.Errorf("soft delete project: %w", err)
	}
	return requireAffected(tag, "project")
}

// ListSidebar lists the user's projects with their visible rooms.
func (s *PostgresStore) ListSidebar(ctx context.Context, userID string) ([]*store.SidebarProject, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.slug, r.id, r.name, rm.role
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id AND pm.user_id = $1
		LEFT JOIN room_members rm ON rm.user_id = $1 AND rm.hidden_at IS NULL
			AND rm.room_id IN (SELECT id FROM rooms WHERE project_id = p.id AND deleted_at IS NULL)
		LEFT JOIN rooms r ON r.id = rm.room_id
		WHERE p.deleted_at IS NULL AND pm.hidden_at IS NULL
		ORDER BY p.updated_at DESC, p.id, r.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query sidebar: %w", err)
	}
	defer rows.Close()

	var projects []*store.SidebarProject
	byID := make(map[string]*store.SidebarProject)
	for rows.Next() {
		var (
			projectID, projectName, slug string
			roomID, roomName, role       *string
		)
		if err := rows.Scan(&projectID, &projectName, &slug, &roomID, &roomName, &role); err != nil {
			return nil, fmt.Errorf("scan sidebar row: %w", err)
		}
		project, ok := byID[projectID]
		if !ok {
			project = &store.SidebarProject{ID: projectID, Name: projectName, Slug: slug, Rooms: []store.SidebarRoom{}}
			byID[projectID] = project
			projects = append(projects, project)
		}
		if roomID != nil {
			memberRole := store.RoleMember
			if role != nil && *role != "" {
				memberRole = store.MemberRole(*role)
			}
			project.Rooms = append(project.Rooms, store.SidebarRoom{ID: *roomID, Name: deref(roomName), MemberRole: memberRole})
		}
	}
	return projects, rows.Err()
}

// ==== MessageStore implementation ====

// CreateMessage validates and persists a message, enriching it in the same statement.
func (s *PostgresStore) CreateMessage(ctx context.Context, roomID, senderID, content string, msgType store.MessageType) (*store.Message, error) {
	body, err := store.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if msgType == "" {
		msgType = store.MessageTypeText
	}

	msg := &store.Message{
		ID:       utils.NewID(),
		RoomID:   roomID,
		SenderID: senderID,
		Type:     msgType,
		Content:  body,
	}

	var display store.SenderDisplay
	err = s.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO messages (id, room_id, sender_id, type, content, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			RETURNING sender_id, created_at
		)
		SELECT i.created_at, u.display_name, u.username, u.name, u.avatar_url, u.image
		FROM inserted i
		LEFT JOIN users u ON u.id = i.sender_id`,
		msg.ID, roomID, senderID, string(msgType), body,
	).Scan(&msg.CreatedAt, &display.DisplayName, &display.Username, &display.Name, &display.AvatarURL, &display.Image)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	display.Apply(msg)
	return msg, nil
}

// ListMessages retrieves the first messages of a room in chronological order.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.seq, m.id, m.room_id, m.sender_id, m.type, m.content, m.created_at,
		       u.display_name, u.username, u.name, u.avatar_url, u.image
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.created_at ASC, m.seq ASC
		LIMIT $2`, roomID, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			msg     store.Message
			seq     int64
			msgType string
			display store.SenderDisplay
		)
		if err := rows.Scan(&seq, &msg.ID, &msg.RoomID, &msg.SenderID, &msgType, &msg.Content, &msg.CreatedAt,
			&display.DisplayName, &display.Username, &display.Name, &display.AvatarURL, &display.Image); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = store.MessageType(msgType)
		msg.CreatedAt = msg.CreatedAt.UTC()
		display.Apply(&msg)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func requireAffected(tag pgconn.CommandTag, what string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ store.Store = (*PostgresStore)(nil)
