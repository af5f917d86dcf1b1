package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/whytchat/core/pkg/concurrent"
	"github.com/whytchat/core/pkg/coreerr"
	"github.com/whytchat/core/pkg/extract"
	"github.com/whytchat/core/pkg/llmclient"
	"github.com/whytchat/core/pkg/paths"
	"github.com/whytchat/core/pkg/store"
	"github.com/whytchat/core/pkg/supervisor"
	"github.com/whytchat/core/pkg/vectorstore"
)

// reindexConcurrency bounds how many files are re-extracted and
// re-embedded at once; each one drives its own embedder round trip, so
// unbounded fan-out would overwhelm a local embedding server.
const reindexConcurrency = 4

const maxTitleLen = 200
const maxSystemPromptLen = 2000

// impl is the concrete Surface, validating inputs before delegating to
// the underlying components.
type impl struct {
	paths      *paths.Paths
	store      *store.Store
	vectors    *vectorstore.Store
	extractors *extract.Registry
	supervisor *supervisor.Supervisor
	llm        *llmclient.Client
}

// New builds the Command Surface around already-constructed components.
// This is the composition root's final assembly step; it never builds
// its own dependencies (each component builds itself in its own
// constructor, and Initialize only re-checks them).
func New(p *paths.Paths, st *store.Store, vs *vectorstore.Store, reg *extract.Registry, sup *supervisor.Supervisor, llm *llmclient.Client) Surface {
	return &impl{paths: p, store: st, vectors: vs, extractors: reg, supervisor: sup, llm: llm}
}

func validateUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return coreerr.New(coreerr.InvalidInput, fmt.Sprintf("invalid id %q", id))
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" || len(title) > maxTitleLen {
		return coreerr.New(coreerr.InvalidInput, "title must be 1-200 characters")
	}
	return nil
}

func validateModelConfig(cfg store.ModelConfig) error {
	if cfg.Temperature < 0.0 || cfg.Temperature > 2.0 {
		return coreerr.New(coreerr.InvalidInput, "temperature must be within [0.0, 2.0]")
	}
	if len(cfg.SystemPrompt) > maxSystemPromptLen {
		return coreerr.New(coreerr.InvalidInput, "system_prompt must be at most 2000 characters")
	}
	return nil
}

// --- Sessions -----------------------------------------------------------

func (i *impl) CreateSession(ctx context.Context, title string, cfg *store.ModelConfig) (*store.Session, error) {
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	modelConfig := store.DefaultModelConfig()
	if cfg != nil {
		if err := validateModelConfig(*cfg); err != nil {
			return nil, err
		}
		modelConfig = *cfg
	}

	id, err := i.store.CreateSession(ctx, title, modelConfig)
	if err != nil {
		return nil, err
	}
	return i.store.GetSession(ctx, id)
}

func (i *impl) ListSessions(ctx context.Context) ([]*store.Session, error) {
	return i.store.ListSessions(ctx)
}

func (i *impl) GetSession(ctx context.Context, id string) (*store.Session, error) {
	if err := validateUUID(id); err != nil {
		return nil, err
	}
	return i.store.GetSession(ctx, id)
}

func (i *impl) UpdateSession(ctx context.Context, id string, title *string, cfg *store.ModelConfig) (*store.Session, error) {
	if err := validateUUID(id); err != nil {
		return nil, err
	}
	if title != nil {
		if err := validateTitle(*title); err != nil {
			return nil, err
		}
		if err := i.store.UpdateSessionTitle(ctx, id, *title); err != nil {
			return nil, err
		}
	}
	if cfg != nil {
		if err := validateModelConfig(*cfg); err != nil {
			return nil, err
		}
		if err := i.store.UpdateSessionModelConfig(ctx, id, *cfg); err != nil {
			return nil, err
		}
	}
	return i.store.GetSession(ctx, id)
}

func (i *impl) DeleteSession(ctx context.Context, id string) error {
	if err := validateUUID(id); err != nil {
		return err
	}
	return i.store.DeleteSession(ctx, id)
}

func (i *impl) ToggleFavorite(ctx context.Context, id string) error {
	if err := validateUUID(id); err != nil {
		return err
	}
	return i.store.ToggleFavorite(ctx, id)
}

func (i *impl) MoveSessionToFolder(ctx context.Context, id string, folderID *string) error {
	if err := validateUUID(id); err != nil {
		return err
	}
	if folderID != nil {
		if err := validateUUID(*folderID); err != nil {
			return err
		}
	}
	return i.store.MoveSessionToFolder(ctx, id, folderID)
}

// --- Messages -------------------------------------------------------------

func (i *impl) PostMessage(ctx context.Context, req supervisor.TurnRequest) (supervisor.TurnResult, error) {
	if err := validateUUID(req.SessionID); err != nil {
		return supervisor.TurnResult{}, err
	}
	if req.UserContent == "" {
		return supervisor.TurnResult{}, coreerr.New(coreerr.InvalidInput, "user_content must not be empty")
	}
	return i.supervisor.RunTurn(ctx, req)
}

func (i *impl) ListMessages(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if err := validateUUID(sessionID); err != nil {
		return nil, err
	}
	return i.store.GetMessages(ctx, sessionID)
}

func (i *impl) DeleteMessage(ctx context.Context, id string) error {
	if err := validateUUID(id); err != nil {
		return err
	}
	return i.store.DeleteMessage(ctx, id)
}

// --- Files ------------------------------------------------------------

func (i *impl) UploadFileForSession(ctx context.Context, sessionID, filename string, data []byte) (*store.LibraryFile, error) {
	if err := validateUUID(sessionID); err != nil {
		return nil, err
	}
	if filename == "" {
		return nil, coreerr.New(coreerr.InvalidInput, "filename must not be empty")
	}

	file, err := i.registerAndStoreFile(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	if err := i.store.LinkFileToSession(ctx, sessionID, file.ID); err != nil {
		return nil, err
	}
	if err := i.ingestFile(ctx, file, data); err != nil {
		return nil, err
	}
	return i.store.GetLibraryFile(ctx, file.ID)
}

func (i *impl) registerAndStoreFile(ctx context.Context, filename string, data []byte) (*store.LibraryFile, error) {
	ext := extOf(filename)
	id, err := i.store.CreateLibraryFile(ctx, filename, ext, int64(len(data)))
	if err != nil {
		return nil, err
	}

	destPath := filepath.Join(i.paths.Files, fmt.Sprintf("%s.%s", id, ext))
	if err := os.WriteFile(destPath, data, 0o600); err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, "write uploaded file bytes", err)
	}

	return i.store.GetLibraryFile(ctx, id)
}

func (i *impl) ingestFile(ctx context.Context, file *store.LibraryFile, data []byte) error {
	text, err := i.extractors.Extract(ctx, data, file.FileType)
	if err != nil {
		return err
	}
	if err := i.vectors.Ingest(ctx, text, "file:"+file.ID); err != nil {
		return err
	}
	return i.store.SetFileIndexed(ctx, file.ID, true)
}

func extOf(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ""
	}
	return ext[1:]
}

func (i *impl) ListLibraryFiles(ctx context.Context) ([]*store.LibraryFile, error) {
	return i.store.ListLibraryFiles(ctx)
}

func (i *impl) ListFilesForSession(ctx context.Context, sessionID string) ([]*store.LibraryFile, error) {
	if err := validateUUID(sessionID); err != nil {
		return nil, err
	}
	return i.store.ListFilesForSession(ctx, sessionID)
}

// DeleteFile removes the library-file row, purges matching vector
// chunks, and unlinks the raw bytes — three explicit steps, not DB side
// effects, per the Persistence contract.
func (i *impl) DeleteFile(ctx context.Context, fileID string) error {
	if err := validateUUID(fileID); err != nil {
		return err
	}
	file, err := i.store.GetLibraryFile(ctx, fileID)
	if err != nil {
		return err
	}
	if file == nil {
		return coreerr.New(coreerr.NotFound, "file not found")
	}

	if err := i.store.DeleteLibraryFile(ctx, fileID); err != nil {
		return err
	}
	if err := i.vectors.DeleteForFile(ctx, fileID); err != nil {
		return err
	}

	rawPath := filepath.Join(i.paths.Files, fmt.Sprintf("%s.%s", file.ID, file.FileType))
	if err := os.Remove(rawPath); err != nil && !os.IsNotExist(err) {
		return coreerr.Wrap(coreerr.Internal, "remove file bytes", err)
	}
	return nil
}

func (i *impl) SaveGeneratedFile(ctx context.Context, name, ext string, data []byte) (*store.LibraryFile, error) {
	if name == "" {
		return nil, coreerr.New(coreerr.InvalidInput, "name must not be empty")
	}
	filename := name
	if ext != "" {
		filename = name + "." + ext
	}
	return i.registerAndStoreFile(ctx, filename, data)
}

// ReindexLibrary re-extracts and re-embeds every library file. Files are
// processed concurrently (bounded by reindexConcurrency) since each one
// is an independent round trip to the extractor and embedder; failures
// and successes are collected into a shared concurrent.Slice rather than
// a plain slice, since worker goroutines append to it in any order.
func (i *impl) ReindexLibrary(ctx context.Context) (ReindexReport, error) {
	files, err := i.store.ListLibraryFiles(ctx)
	if err != nil {
		return ReindexReport{}, err
	}

	failed := concurrent.NewSlice[string]()
	processed := concurrent.NewSlice[string]()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexConcurrency)

	for _, file := range files {
		file := file
		g.Go(func() error {
			rawPath := filepath.Join(i.paths.Files, fmt.Sprintf("%s.%s", file.ID, file.FileType))
			data, err := os.ReadFile(rawPath)
			if err != nil {
				failed.Append(file.ID)
				return nil
			}
			if err := i.vectors.DeleteForFile(gctx, file.ID); err != nil {
				failed.Append(file.ID)
				return nil
			}
			if err := i.ingestFile(gctx, file, data); err != nil {
				failed.Append(file.ID)
				return nil
			}
			processed.Append(file.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReindexReport{}, err
	}

	return ReindexReport{
		FilesProcessed: processed.Length(),
		FilesFailed:    failed.All(),
	}, nil
}

// --- Folders --------------------------------------------------------------

func (i *impl) ListFolders(ctx context.Context) ([]*store.Folder, error) {
	return i.store.ListFolders(ctx)
}

func (i *impl) CreateFolder(ctx context.Context, name string, folderType store.FolderType, color string, sortOrder int64) (*store.Folder, error) {
	if name == "" {
		return nil, coreerr.New(coreerr.InvalidInput, "name must not be empty")
	}
	if folderType != store.FolderTypeSession && folderType != store.FolderTypeFile {
		return nil, coreerr.New(coreerr.InvalidInput, "folder_type must be session or file")
	}
	id, err := i.store.CreateFolder(ctx, name, folderType, color, sortOrder)
	if err != nil {
		return nil, err
	}
	folders, err := i.store.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range folders {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, coreerr.New(coreerr.Internal, "created folder not found on readback")
}

func (i *impl) DeleteFolder(ctx context.Context, id string) error {
	if err := validateUUID(id); err != nil {
		return err
	}
	return i.store.DeleteFolder(ctx, id)
}

func (i *impl) MoveFileToFolder(ctx context.Context, fileID string, folderID *string) error {
	if err := validateUUID(fileID); err != nil {
		return err
	}
	if folderID != nil {
		if err := validateUUID(*folderID); err != nil {
			return err
		}
	}
	return i.store.SetLibraryFileFolder(ctx, fileID, folderID)
}
