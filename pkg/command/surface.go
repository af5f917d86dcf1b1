// Package command implements the Command Surface: the fixed operation
// catalog a UI (or any other caller) uses to drive the orchestration
// core. Inputs are validated at this boundary before delegating to the
// underlying components.
package command

import (
	"context"

	"github.com/whytchat/core/pkg/store"
	"github.com/whytchat/core/pkg/supervisor"
)

// Surface is the full operation catalog, consumed directly by in-process
// callers (tests, a future UI binding) and fronted by an HTTP adapter.
type Surface interface {
	// Sessions
	CreateSession(ctx context.Context, title string, cfg *store.ModelConfig) (*store.Session, error)
	ListSessions(ctx context.Context) ([]*store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	UpdateSession(ctx context.Context, id string, title *string, cfg *store.ModelConfig) (*store.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ToggleFavorite(ctx context.Context, id string) error
	MoveSessionToFolder(ctx context.Context, id string, folderID *string) error

	// Messages
	PostMessage(ctx context.Context, req supervisor.TurnRequest) (supervisor.TurnResult, error)
	ListMessages(ctx context.Context, sessionID string) ([]*store.Message, error)
	DeleteMessage(ctx context.Context, id string) error

	// Files
	UploadFileForSession(ctx context.Context, sessionID, filename string, data []byte) (*store.LibraryFile, error)
	ListLibraryFiles(ctx context.Context) ([]*store.LibraryFile, error)
	ListFilesForSession(ctx context.Context, sessionID string) ([]*store.LibraryFile, error)
	DeleteFile(ctx context.Context, fileID string) error
	SaveGeneratedFile(ctx context.Context, name, ext string, data []byte) (*store.LibraryFile, error)
	ReindexLibrary(ctx context.Context) (ReindexReport, error)

	// Folders
	ListFolders(ctx context.Context) ([]*store.Folder, error)
	CreateFolder(ctx context.Context, name string, folderType store.FolderType, color string, sortOrder int64) (*store.Folder, error)
	DeleteFolder(ctx context.Context, id string) error
	MoveFileToFolder(ctx context.Context, fileID string, folderID *string) error

	// System
	Initialize(ctx context.Context) error
	PreflightCheck(ctx context.Context) (PreflightReport, error)
	Diagnostics(ctx context.Context) (DiagnosticsReport, error)
	DownloadModel(ctx context.Context, progress func(percent int), status func(step, detail string)) error
}

// ReindexReport summarizes a reindex_library run.
type ReindexReport struct {
	FilesProcessed int      `json:"files_processed"`
	FilesFailed    []string `json:"files_failed"`
}

// PreflightReport is the structured report preflight_check returns.
type PreflightReport struct {
	Paths       CheckResult `json:"paths"`
	Database    CheckResult `json:"database"`
	VectorStore CheckResult `json:"vector_store"`
	ModelBinary CheckResult `json:"model_binary"`
	ModelWeights CheckResult `json:"model_weights"`
	Embedder    CheckResult `json:"embedder"`
}

// DiagnosticsReport lists every preflight check by name with its
// outcome; the checks are not grouped into categories.
type DiagnosticsReport struct {
	Checks []NamedCheckResult `json:"checks"`
}

// NamedCheckResult pairs a diagnostic test's name with its outcome.
type NamedCheckResult struct {
	Name string     `json:"name"`
	CheckResult
}

// CheckResult is one pass/fail outcome with an optional detail message.
type CheckResult struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}
