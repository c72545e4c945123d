package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/teamchat-server/internal/store"
	"github.com/vovakirdan/teamchat-server/internal/utils"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file. When autoSchema is set the
// bootstrap schema is applied.
func New(dbPath string, autoSchema bool) (*SQLiteStore, error) {
	var setup func(*sql.DB) error
	if autoSchema {
		setup = func(db *sql.DB) error {
			return ApplySchema(context.Background(), db)
		}
	}
	return NewWithSetup(dbPath, setup)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; this also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// EnsureUser inserts the user if no row with the same ID exists.
func (s *SQLiteStore) EnsureUser(ctx context.Context, user *store.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT OR IGNORE INTO users (id, display_name, username, name, email, avatar_url, image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.DisplayName, user.Username, user.Name, user.Email, user.AvatarURL, user.Image, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	if user.ID == "" {
		user.ID = utils.NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO users (id, display_name, username, name, email, avatar_url, image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.DisplayName, user.Username, user.Name, user.Email, user.AvatarURL, user.Image, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.ID, store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, display_name, username, name, email, avatar_url, image, created_at
		FROM users
		WHERE id = ?
	`
	var (
		user                                            store.User
		displayName, username, name, email, avatar, img sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &displayName, &username, &name, &email, &avatar, &img, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	user.DisplayName = nullString(displayName)
	user.Username = nullString(username)
	user.Name = nullString(name)
	user.Email = nullString(email)
	user.AvatarURL = nullString(avatar)
	user.Image = nullString(img)
	return &user, nil
}

// ==== RoomStore implementation ====

// IsMember checks if user is a member of a live room.
func (s *SQLiteStore) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	query := `
		SELECT 1
		FROM room_members rm
		JOIN rooms r ON r.id = rm.room_id
		JOIN projects p ON p.id = r.project_id
		WHERE rm.user_id = ? AND rm.room_id = ?
		  AND r.deleted_at IS NULL AND p.deleted_at IS NULL
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, userID, roomID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}

	return true, nil
}

// CreateRoom inserts the room and the creator's membership atomically.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room, creatorID string, role store.MemberRole) error {
	if room.ID == "" {
		room.ID = utils.NewID()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
		room.ID, room.ProjectID, room.Name, room.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		room.ID, creatorID, string(role), room.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert room member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AddRoomMember grants room access and joins the room's project as a member.
func (s *SQLiteStore) AddRoomMember(ctx context.Context, roomID, userID string, role store.MemberRole) error {
	room, err := s.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO project_members (project_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		room.ProjectID, userID, string(store.RoleMember), now,
	); err != nil {
		return fmt.Errorf("insert project member: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_members (room_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		roomID, userID, string(role), now,
	); err != nil {
		return fmt.Errorf("insert room member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id string) (*store.Room, error) {
	query := `
		SELECT id, project_id, name, created_at, deleted_at
		FROM rooms
		WHERE id = ?
	`
	return s.scanRoom(s.db.QueryRowContext(ctx, query, id))
}

// GetRoomForMember retrieves a live room the user is a member of.
func (s *SQLiteStore) GetRoomForMember(ctx context.Context, roomID, userID string) (*store.Room, error) {
	query := `
		SELECT r.id, r.project_id, r.name, r.created_at, r.deleted_at
		FROM rooms r
		JOIN projects p ON p.id = r.project_id
		JOIN room_members rm ON rm.room_id = r.id
		WHERE r.id = ? AND rm.user_id = ?
		  AND r.deleted_at IS NULL AND p.deleted_at IS NULL
	`
	return s.scanRoom(s.db.QueryRowContext(ctx, query, roomID, userID))
}

func (s *SQLiteStore) scanRoom(row *sql.Row) (*store.Room, error) {
	var room store.Room
	var deletedAt sql.NullTime
	if err := row.Scan(&room.ID, &room.ProjectID, &room.Name, &room.CreatedAt, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	room.DeletedAt = nullTime(deletedAt)
	return &room, nil
}

// GetRoomMember retrieves a membership row.
func (s *SQLiteStore) GetRoomMember(ctx context.Context, roomID, userID string) (*store.RoomMember, error) {
	query := `
		SELECT room_id, user_id, role, hidden_at, joined_at
		FROM room_members
		WHERE room_id = ? AND user_id = ?
	`
	var m store.RoomMember
	var hiddenAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&m.RoomID, &m.UserID, &m.Role, &hiddenAt, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room member: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room member: %w", err)
	}
	m.HiddenAt = nullTime(hiddenAt)
	return &m, nil
}

// SoftDeleteRoom marks the room deleted.
func (s *SQLiteStore) SoftDeleteRoom(ctx context.Context, roomID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE rooms SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, at.UTC(), roomID)
	if err != nil {
		return fmt.Errorf("soft delete room: %w", err)
	}
	return requireAffected(result, "room")
}

// SetRoomHidden sets or clears the hidden marker of a membership.
func (s *SQLiteStore) SetRoomHidden(ctx context.Context, roomID, userID string, hiddenAt *time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE room_members SET hidden_at = ? WHERE room_id = ? AND user_id = ?`,
		utcPtr(hiddenAt), roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("update room visibility: %w", err)
	}
	return requireAffected(result, "room member")
}

// ==== ProjectStore implementation ====

// HasProjectMembership reports whether the user belongs to any project.
func (s *SQLiteStore) HasProjectMembership(ctx context.Context, userID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM project_members WHERE user_id = ? LIMIT 1`, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query project membership: %w", err)
	}
	return true, nil
}

// CreateProjectWithRooms inserts a project owned by ownerID along with seed rooms.
func (s *SQLiteStore) CreateProjectWithRooms(ctx context.Context, project *store.Project, ownerID string, rooms []store.SeedRoom) error {
	now := time.Now().UTC()
	if project.ID == "" {
		project.ID = utils.NewID()
	}
	project.CreatedByID = ownerID
	project.CreatedAt = now
	project.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, slug, description, created_by_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.Name, project.Slug, project.Description, ownerID, now, now,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("project slug %q: %w", project.Slug, store.ErrConflict)
		}
		return fmt.Errorf("insert project: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		project.ID, ownerID, string(store.RoleOwner), now,
	); err != nil {
		return fmt.Errorf("insert project member: %w", err)
	}

	for i := range rooms {
		seed := &rooms[i]
		roomID := utils.NewID()
		seed.ID = roomID
		// Distinct timestamps keep the seed order stable in the sidebar.
		createdAt := now.Add(time.Duration(i) * time.Millisecond)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
			roomID, project.ID, seed.Name, createdAt,
		); err != nil {
			return fmt.Errorf("insert room %q: %w", seed.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
			roomID, ownerID, string(seed.Role), createdAt,
		); err != nil {
			return fmt.Errorf("insert member of room %q: %w", seed.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetProjectMember retrieves a membership in a live project.
func (s *SQLiteStore) GetProjectMember(ctx context.Context, projectID, userID string) (*store.ProjectMember, error) {
	query := `
		SELECT pm.project_id, pm.user_id, pm.role, pm.hidden_at, pm.joined_at
		FROM project_members pm
		JOIN projects p ON p.id = pm.project_id
		WHERE pm.project_id = ? AND pm.user_id = ? AND p.deleted_at IS NULL
	`
	var m store.ProjectMember
	var hiddenAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, projectID, userID).Scan(&m.ProjectID, &m.UserID, &m.Role, &hiddenAt, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project member: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query project member: %w", err)
	}
	m.HiddenAt = nullTime(hiddenAt)
	return &m, nil
}

// SetProjectHidden sets or clears the hidden marker of a project membership.
func (s *SQLiteStore) SetProjectHidden(ctx context.Context, projectID, userID string, hiddenAt *time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE project_members SET hidden_at = ?
		WHERE project_id = ? AND user_id = ?
		  AND EXISTS (SELECT 1 FROM projects p WHERE p.id = project_id AND p.deleted_at IS NULL)`,
		utcPtr(hiddenAt), projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("update project visibility: %w", err)
	}
	return requireAffected(result, "project member")
}

// SoftDeleteProject marks the project deleted.
func (s *SQLiteStore) SoftDeleteProject(ctx context.Context, projectID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at.UTC(), at.UTC(), projectID,
	)
	if err != nil {
		return fmt.Errorf("soft delete project: %w", err)
	}
	return requireAffected(result, "project")
}

// ListSidebar lists the user's projects with their visible rooms.
func (s *SQLiteStore) ListSidebar(ctx context.Context, userID string) ([]*store.SidebarProject, error) {
	query := `
		SELECT p.id, p.name, p.slug, r.id, r.name, rm.role
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id AND pm.user_id = ?
		LEFT JOIN rooms r ON r.project_id = p.id AND r.deleted_at IS NULL
			AND EXISTS (
				SELECT 1 FROM room_members x
				WHERE x.room_id = r.id AND x.user_id = ? AND x.hidden_at IS NULL
			)
		LEFT JOIN room_members rm ON rm.room_id = r.id AND rm.user_id = ?
		WHERE p.deleted_at IS NULL AND pm.hidden_at IS NULL
		ORDER BY p.updated_at DESC, p.id, r.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query sidebar: %w", err)
	}
	defer rows.Close()

	var projects []*store.SidebarProject
	byID := make(map[string]*store.SidebarProject)
	for rows.Next() {
		var (
			projectID, projectName, slug string
			roomID, roomName, role       sql.NullString
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
		if roomID.Valid {
			memberRole := store.RoleMember
			if role.Valid && role.String != "" {
				memberRole = store.MemberRole(role.String)
			}
			project.Rooms = append(project.Rooms, store.SidebarRoom{ID: roomID.String, Name: roomName.String, MemberRole: memberRole})
		}
	}

	return projects, rows.Err()
}

// ==== MessageStore implementation ====

// CreateMessage validates and persists a message. The sender is read in the
// same transaction so a stored message always comes back enriched.
func (s *SQLiteStore) CreateMessage(ctx context.Context, roomID, senderID, content string, msgType store.MessageType) (*store.Message, error) {
	body, err := store.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if msgType == "" {
		msgType = store.MessageTypeText
	}

	msg := &store.Message{
		ID:        utils.NewID(),
		RoomID:    roomID,
		SenderID:  senderID,
		Type:      msgType,
		Content:   body,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	display, err := senderDisplay(ctx, tx, senderID)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO messages (id, room_id, sender_id, type, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, msg.ID, msg.RoomID, msg.SenderID, string(msg.Type), msg.Content, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	display.Apply(msg)
	return msg, nil
}

func senderDisplay(ctx context.Context, tx *sql.Tx, userID string) (store.SenderDisplay, error) {
	var display store.SenderDisplay
	var displayName, username, name, avatar, img sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT display_name, username, name, avatar_url, image FROM users WHERE id = ?`, userID,
	).Scan(&displayName, &username, &name, &avatar, &img)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return display, nil
		}
		return display, fmt.Errorf("query sender: %w", err)
	}
	display.DisplayName = nullString(displayName)
	display.Username = nullString(username)
	display.Name = nullString(name)
	display.AvatarURL = nullString(avatar)
	display.Image = nullString(img)
	return display, nil
}

// ListMessages retrieves the first messages of a room in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.sender_id, m.type, m.content, m.created_at,
		       u.display_name, u.username, u.name, u.avatar_url, u.image
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = ?
		ORDER BY m.created_at ASC, m.seq ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			msg                                      store.Message
			displayName, username, name, avatar, img sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Type, &msg.Content, &msg.CreatedAt,
			&displayName, &username, &name, &avatar, &img); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		store.SenderDisplay{
			DisplayName: nullString(displayName),
			Username:    nullString(username),
			Name:        nullString(name),
			AvatarURL:   nullString(avatar),
			Image:       nullString(img),
		}.Apply(&msg)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

var _ store.Store = (*SQLiteStore)(nil)
