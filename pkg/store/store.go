package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/whytchat/core/pkg/coreerr"
	"github.com/whytchat/core/pkg/secrets"
	"github.com/whytchat/core/pkg/sqliteutil"
)

// Store is the Persistence component: typed CRUD over a single SQLite
// database, with ModelConfig transparently encrypted/decrypted via a
// secrets.Store.
type Store struct {
	db      *sql.DB
	secrets *secrets.Store
}

// Open opens (creating if absent) the SQLite database at path, applies
// pending migrations, and returns a ready Store. secretStore is used to
// encrypt/decrypt ModelConfig blobs.
func Open(path string, secretStore *secrets.Store) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.DbError, "open database", err)
	}

	s := &Store{db: db, secrets: secretStore}

	if err := newMigrationManager(db).run(context.Background()); err != nil {
		db.Close()
		return nil, coreerr.Wrap(coreerr.DbError, "run migrations", err)
	}

	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- Sessions ---------------------------------------------------------

// CreateSession persists a new session with the given title and model
// config (encrypted at rest) and returns its generated id.
func (s *Store) CreateSession(ctx context.Context, title string, cfg ModelConfig) (string, error) {
	blob, err := s.encryptConfig(cfg)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	ts := now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, model_config, folder_id, is_favorite, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, NULL, 0, NULL, ?, ?)
	`, id, title, blob, ts, ts)
	if err != nil {
		return "", coreerr.Wrap(coreerr.DbError, "insert session", err)
	}
	return id, nil
}

// GetSession returns the session, or (nil, nil) if it does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, model_config, folder_id, is_favorite, sort_order, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)
	return s.scanSession(row)
}

func (s *Store) scanSession(row *sql.Row) (*Session, error) {
	var (
		sess        Session
		blob        string
		folderID    sql.NullString
		sortOrder   sql.NullInt64
		createdAt   string
		updatedAt   string
		isFavorite  int
	)
	err := row.Scan(&sess.ID, &sess.Title, &blob, &folderID, &isFavorite, &sortOrder, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, coreerr.Wrap(coreerr.DbError, "scan session", err)
	}

	cfg, err := s.decryptConfig(blob)
	if err != nil {
		return nil, err
	}

	sess.ModelConfig = cfg
	sess.IsFavorite = isFavorite != 0
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	if folderID.Valid {
		sess.FolderID = &folderID.String
	}
	if sortOrder.Valid {
		v := sortOrder.Int64
		sess.SortOrder = &v
	}
	return &sess, nil
}

// ListSessions returns all sessions pinned-then-sorted:
// is_favorite DESC, sort_order (NULLS LAST) ASC, updated_at DESC.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, model_config, folder_id, is_favorite, sort_order, created_at, updated_at
		FROM sessions
		ORDER BY is_favorite DESC, (sort_order IS NULL) ASC, sort_order ASC, updated_at DESC
	`)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.DbError, "list sessions", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var (
			sess       Session
			blob       string
			folderID   sql.NullString
			sortOrder  sql.NullInt64
			createdAt  string
			updatedAt  string
			isFavorite int
		)
		if err := rows.Scan(&sess.ID, &sess.Title, &blob, &folderID, &isFavorite, &sortOrder, &createdAt, &updatedAt); err != nil {
			return nil, coreerr.Wrap(coreerr.DbError, "scan session row", err)
		}
		cfg, err := s.decryptConfig(blob)
		if err != nil {
			return nil, err
		}
		sess.ModelConfig = cfg
		sess.IsFavorite = isFavorite != 0
		sess.CreatedAt = parseTime(createdAt)
		sess.UpdatedAt = parseTime(updatedAt)
		if folderID.Valid {
			sess.FolderID = &folderID.String
		}
		if sortOrder.Valid {
			v := sortOrder.Int64
			sess.SortOrder = &v
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// UpdateSessionTitle renames a session.
func (s *Store) UpdateSessionTitle(ctx context.Context, id, title string) error {
	return s.touchUpdate(ctx, `UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`, title, now(), id)
}

// UpdateSessionModelConfig replaces a session's model configuration.
func (s *Store) UpdateSessionModelConfig(ctx context.Context, id string, cfg ModelConfig) error {
	blob, err := s.encryptConfig(cfg)
	if err != nil {
		return err
	}
	return s.touchUpdate(ctx, `UPDATE sessions SET model_config = ?, updated_at = ? WHERE id = ?`, blob, now(), id)
}

// ToggleFavorite flips a session's favorite flag.
func (s *Store) ToggleFavorite(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_favorite = NOT is_favorite, updated_at = ? WHERE id = ?`, now(), id)
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "toggle favorite", err)
	}
	return checkRowsAffected(res)
}

// MoveSessionToFolder reassigns a session's folder (nil clears it).
func (s *Store) MoveSessionToFolder(ctx context.Context, id string, folderID *string) error {
	return s.touchUpdate(ctx, `UPDATE sessions SET folder_id = ?, updated_at = ? WHERE id = ?`, folderID, now(), id)
}

// DeleteSession removes a session; messages and session_files cascade via
// foreign keys.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "delete session", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) touchUpdate(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "update session", err)
	}
	return checkRowsAffected(res)
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "rows affected", err)
	}
	if n == 0 {
		return coreerr.New(coreerr.NotFound, "no matching row")
	}
	return nil
}

func (s *Store) encryptConfig(cfg ModelConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", coreerr.Wrap(coreerr.Internal, "marshal model config", err)
	}
	blob, err := s.secrets.Encrypt(raw)
	if err != nil {
		return "", err
	}
	return blob, nil
}

func (s *Store) decryptConfig(blob string) (ModelConfig, error) {
	raw, err := s.secrets.Decrypt(blob)
	if err != nil {
		return ModelConfig{}, err
	}
	var cfg ModelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return ModelConfig{}, coreerr.Wrap(coreerr.Corrupt, "unmarshal model config", err)
	}
	return cfg, nil
}

// --- Messages -----------------------------------------------------------

// SaveMessage appends a message (append-only) and returns its generated id.
func (s *Store) SaveMessage(ctx context.Context, sessionID string, role Role, content string, tokens *int) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, sessionID, role, content, tokens, now())
	if err != nil {
		return "", coreerr.Wrap(coreerr.DbError, "insert message", err)
	}
	return id, nil
}

// GetMessages returns a session's messages in chronological order.
func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, tokens, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.DbError, "list messages", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var (
			m         Message
			tokens    sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &tokens, &createdAt); err != nil {
			return nil, coreerr.Wrap(coreerr.DbError, "scan message", err)
		}
		if tokens.Valid {
			v := int(tokens.Int64)
			m.Tokens = &v
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteMessage removes a single message.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "delete message", err)
	}
	return checkRowsAffected(res)
}

// --- Folders --------------------------------------------------------------

// CreateFolder persists a new folder and returns its generated id.
func (s *Store) CreateFolder(ctx context.Context, name string, folderType FolderType, color string, sortOrder int64) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, name, folder_type, color, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, name, folderType, color, sortOrder, now())
	if err != nil {
		return "", coreerr.Wrap(coreerr.DbError, "insert folder", err)
	}
	return id, nil
}

// ListFolders returns every folder, sorted by sort_order then name.
func (s *Store) ListFolders(ctx context.Context) ([]*Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, folder_type, color, sort_order, created_at
		FROM folders ORDER BY sort_order ASC, name ASC
	`)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.DbError, "list folders", err)
	}
	defer rows.Close()

	var out []*Folder
	for rows.Next() {
		var f Folder
		var createdAt string
		if err := rows.Scan(&f.ID, &f.Name, &f.FolderType, &f.Color, &f.SortOrder, &createdAt); err != nil {
			return nil, coreerr.Wrap(coreerr.DbError, "scan folder", err)
		}
		f.CreatedAt = parseTime(createdAt)
		out = append(out, &f)
	}
	return out, rows.Err()
}

// DeleteFolder removes a folder; sessions/files referencing it are
// detached (ON DELETE SET NULL), not deleted.
func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "delete folder", err)
	}
	return checkRowsAffected(res)
}

// --- Library files ----------------------------------------------------

// CreateLibraryFile registers an uploaded file's metadata row.
func (s *Store) CreateLibraryFile(ctx context.Context, name, fileType string, sizeBytes int64) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_files (id, folder_id, name, file_type, size_bytes, is_indexed, created_at)
		VALUES (?, NULL, ?, ?, ?, 0, ?)
	`, id, name, fileType, sizeBytes, now())
	if err != nil {
		return "", coreerr.Wrap(coreerr.DbError, "insert library file", err)
	}
	return id, nil
}

// GetLibraryFile returns a file's metadata, or (nil, nil) if absent.
func (s *Store) GetLibraryFile(ctx context.Context, id string) (*LibraryFile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, folder_id, name, file_type, size_bytes, is_indexed, created_at
		FROM library_files WHERE id = ?
	`, id)
	var (
		f         LibraryFile
		folderID  sql.NullString
		isIndexed int
		createdAt string
	)
	err := row.Scan(&f.ID, &folderID, &f.Name, &f.FileType, &f.SizeBytes, &isIndexed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, coreerr.Wrap(coreerr.DbError, "scan library file", err)
	}
	f.IsIndexed = isIndexed != 0
	f.CreatedAt = parseTime(createdAt)
	if folderID.Valid {
		f.FolderID = &folderID.String
	}
	return &f, nil
}

// ListLibraryFiles returns every library file, newest first.
func (s *Store) ListLibraryFiles(ctx context.Context) ([]*LibraryFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, folder_id, name, file_type, size_bytes, is_indexed, created_at
		FROM library_files ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.DbError, "list library files", err)
	}
	defer rows.Close()

	var out []*LibraryFile
	for rows.Next() {
		var (
			f         LibraryFile
			folderID  sql.NullString
			isIndexed int
			createdAt string
		)
		if err := rows.Scan(&f.ID, &folderID, &f.Name, &f.FileType, &f.SizeBytes, &isIndexed, &createdAt); err != nil {
			return nil, coreerr.Wrap(coreerr.DbError, "scan library file row", err)
		}
		f.IsIndexed = isIndexed != 0
		f.CreatedAt = parseTime(createdAt)
		if folderID.Valid {
			f.FolderID = &folderID.String
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// ListFilesForSession returns the library files linked to a session.
func (s *Store) ListFilesForSession(ctx context.Context, sessionID string) ([]*LibraryFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.folder_id, f.name, f.file_type, f.size_bytes, f.is_indexed, f.created_at
		FROM library_files f
		JOIN session_files sf ON sf.file_id = f.id
		WHERE sf.session_id = ?
		ORDER BY sf.added_at ASC
	`, sessionID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.DbError, "list files for session", err)
	}
	defer rows.Close()

	var out []*LibraryFile
	for rows.Next() {
		var (
			f         LibraryFile
			folderID  sql.NullString
			isIndexed int
			createdAt string
		)
		if err := rows.Scan(&f.ID, &folderID, &f.Name, &f.FileType, &f.SizeBytes, &isIndexed, &createdAt); err != nil {
			return nil, coreerr.Wrap(coreerr.DbError, "scan session file row", err)
		}
		f.IsIndexed = isIndexed != 0
		f.CreatedAt = parseTime(createdAt)
		if folderID.Valid {
			f.FolderID = &folderID.String
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// SetLibraryFileFolder reassigns a library file's folder (nil clears it).
func (s *Store) SetLibraryFileFolder(ctx context.Context, fileID string, folderID *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE library_files SET folder_id = ? WHERE id = ?`, folderID, fileID)
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "set library file folder", err)
	}
	return checkRowsAffected(res)
}

// SetFileIndexed flags whether a file has at least one vector chunk.
func (s *Store) SetFileIndexed(ctx context.Context, fileID string, indexed bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE library_files SET is_indexed = ? WHERE id = ?`, indexed, fileID)
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "set file indexed", err)
	}
	return nil
}

// DeleteLibraryFile removes a file's metadata row; session_files cascades.
// Callers are responsible for the separate vector-purge and byte-unlink
// steps (spec: these are explicit, not DB side effects).
func (s *Store) DeleteLibraryFile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM library_files WHERE id = ?`, id)
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "delete library file", err)
	}
	return checkRowsAffected(res)
}

// --- Session-file links --------------------------------------------------

// LinkFileToSession is idempotent: a primary-key collision is not an error.
func (s *Store) LinkFileToSession(ctx context.Context, sessionID, fileID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_files (session_id, file_id, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id, file_id) DO NOTHING
	`, sessionID, fileID, now())
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "link file to session", err)
	}
	return nil
}

// UnlinkFileFromSession removes one session↔file link without touching
// the file itself.
func (s *Store) UnlinkFileFromSession(ctx context.Context, sessionID, fileID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM session_files WHERE session_id = ? AND file_id = ?
	`, sessionID, fileID)
	if err != nil {
		return coreerr.Wrap(coreerr.DbError, "unlink file from session", err)
	}
	return nil
}
