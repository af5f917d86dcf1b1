package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whytchat/core/pkg/command"
	"github.com/whytchat/core/pkg/coreerr"
	"github.com/whytchat/core/pkg/store"
	"github.com/whytchat/core/pkg/supervisor"
)

// fakeSurface implements command.Surface with canned, in-memory behavior
// so these tests exercise routing/marshaling only, not the real
// components (those are covered by pkg/command's own tests).
type fakeSurface struct {
	sessions map[string]*store.Session
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{sessions: make(map[string]*store.Session)}
}

func (f *fakeSurface) CreateSession(_ context.Context, title string, cfg *store.ModelConfig) (*store.Session, error) {
	modelConfig := store.DefaultModelConfig()
	if cfg != nil {
		modelConfig = *cfg
	}
	sess := &store.Session{ID: "sess-1", Title: title, ModelConfig: modelConfig}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeSurface) ListSessions(_ context.Context) ([]*store.Session, error) {
	var out []*store.Session
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSurface) GetSession(_ context.Context, id string) (*store.Session, error) {
	return f.sessions[id], nil
}

func (f *fakeSurface) UpdateSession(_ context.Context, id string, title *string, cfg *store.ModelConfig) (*store.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return nil, coreerr.New(coreerr.NotFound, "session not found")
	}
	if title != nil {
		sess.Title = *title
	}
	return sess, nil
}

func (f *fakeSurface) DeleteSession(_ context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

func (f *fakeSurface) ToggleFavorite(_ context.Context, _ string) error { return nil }

func (f *fakeSurface) MoveSessionToFolder(_ context.Context, _ string, _ *string) error { return nil }

func (f *fakeSurface) PostMessage(_ context.Context, _ supervisor.TurnRequest) (supervisor.TurnResult, error) {
	return supervisor.TurnResult{AssistantText: "fake reply"}, nil
}

func (f *fakeSurface) ListMessages(_ context.Context, _ string) ([]*store.Message, error) {
	return nil, nil
}

func (f *fakeSurface) DeleteMessage(_ context.Context, _ string) error { return nil }

func (f *fakeSurface) UploadFileForSession(_ context.Context, _, filename string, data []byte) (*store.LibraryFile, error) {
	return &store.LibraryFile{ID: "file-1", Name: filename, SizeBytes: int64(len(data))}, nil
}

func (f *fakeSurface) ListLibraryFiles(_ context.Context) ([]*store.LibraryFile, error) {
	return nil, nil
}

func (f *fakeSurface) ListFilesForSession(_ context.Context, _ string) ([]*store.LibraryFile, error) {
	return nil, nil
}

func (f *fakeSurface) DeleteFile(_ context.Context, _ string) error { return nil }

func (f *fakeSurface) SaveGeneratedFile(_ context.Context, name, _ string, _ []byte) (*store.LibraryFile, error) {
	return &store.LibraryFile{ID: "file-2", Name: name}, nil
}

func (f *fakeSurface) ReindexLibrary(_ context.Context) (command.ReindexReport, error) {
	return command.ReindexReport{}, nil
}

func (f *fakeSurface) ListFolders(_ context.Context) ([]*store.Folder, error) { return nil, nil }

func (f *fakeSurface) CreateFolder(_ context.Context, name string, folderType store.FolderType, _ string, _ int64) (*store.Folder, error) {
	return &store.Folder{ID: "folder-1", Name: name, FolderType: folderType}, nil
}

func (f *fakeSurface) DeleteFolder(_ context.Context, _ string) error { return nil }

func (f *fakeSurface) MoveFileToFolder(_ context.Context, _ string, _ *string) error { return nil }

func (f *fakeSurface) Initialize(_ context.Context) error { return nil }

func (f *fakeSurface) PreflightCheck(_ context.Context) (command.PreflightReport, error) {
	return command.PreflightReport{Paths: command.CheckResult{OK: true}}, nil
}

func (f *fakeSurface) Diagnostics(_ context.Context) (command.DiagnosticsReport, error) {
	return command.DiagnosticsReport{}, nil
}

func (f *fakeSurface) DownloadModel(_ context.Context, progress func(int), status func(string, string)) error {
	status("starting", "test")
	progress(100)
	return nil
}

func newTestServer(t *testing.T, surf command.Surface) *Server {
	t.Helper()
	return New(surf)
}

func TestCreateAndGetSession(t *testing.T) {
	surf := newFakeSurface()
	srv := newTestServer(t, surf)

	body := `{"title": "hello world"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var sess store.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "hello world", sess.Title)

	getReq := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.ID, nil)
	getRec := httptest.NewRecorder()
	srv.e.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestGetMissingSessionReturns404(t *testing.T) {
	surf := newFakeSurface()
	srv := newTestServer(t, surf)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/ghost", nil)
	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSessionReturns204(t *testing.T) {
	surf := newFakeSurface()
	srv := newTestServer(t, surf)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateFolderRoundTrip(t *testing.T) {
	surf := newFakeSurface()
	srv := newTestServer(t, surf)

	body := `{"name": "work", "folder_type": "session", "color": "#fff", "sort_order": 1}`
	req := httptest.NewRequest(http.MethodPost, "/api/folders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var folder store.Folder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &folder))
	assert.Equal(t, "work", folder.Name)
}

func TestPreflightCheckRoute(t *testing.T) {
	surf := newFakeSurface()
	srv := newTestServer(t, surf)

	req := httptest.NewRequest(http.MethodGet, "/api/system/preflight", nil)
	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
