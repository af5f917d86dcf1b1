// Package store implements the Persistence component: SQLite-backed CRUD
// for sessions, messages, folders, library files, and session↔file links,
// fronted by a forward-only migration runner.
package store

import "time"

// Session is one conversation thread. ModelConfig is persisted encrypted;
// callers always see it in decrypted form.
type Session struct {
	ID          string
	Title       string
	ModelConfig ModelConfig
	FolderID    *string
	IsFavorite  bool
	SortOrder   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ModelConfig is the per-session model selection and generation parameters.
type ModelConfig struct {
	ModelID      string  `json:"model_id"`
	Temperature  float32 `json:"temperature"`
	SystemPrompt string  `json:"system_prompt"`
}

// DefaultModelConfig is used for newly created sessions that don't specify one.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		ModelID:      "",
		Temperature:  0.7,
		SystemPrompt: "You are a helpful assistant.",
	}
}

// Role enumerates Message.Role values.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn-half (either the user's input or the model's reply).
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	Tokens    *int
	CreatedAt time.Time
}

// FolderType enumerates Folder.FolderType values.
type FolderType string

const (
	FolderTypeSession FolderType = "session"
	FolderTypeFile    FolderType = "file"
)

// Folder groups sessions or library files.
type Folder struct {
	ID         string
	Name       string
	FolderType FolderType
	Color      string
	SortOrder  int64
	CreatedAt  time.Time
}

// LibraryFile is an uploaded document. Its raw bytes live under
// files/{id}.{FileType}; its indexed chunks carry metadata `file:{id}`.
type LibraryFile struct {
	ID         string
	FolderID   *string
	Name       string
	FileType   string
	SizeBytes  int64
	IsIndexed  bool
	CreatedAt  time.Time
}

// SessionFile links a LibraryFile into a Session's context.
type SessionFile struct {
	SessionID string
	FileID    string
	AddedAt   time.Time
}
