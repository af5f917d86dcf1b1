// Package httpapi fronts the command.Surface with an HTTP/JSON API,
// following the teacher's own echo-based server layout: one handler
// method per route, errors rendered as {"error": "..."} JSON bodies,
// long-running turns streamed to the client as SSE.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/whytchat/core/pkg/command"
	"github.com/whytchat/core/pkg/coreerr"
	"github.com/whytchat/core/pkg/store"
	"github.com/whytchat/core/pkg/supervisor"
)

// Server wraps a command.Surface with an HTTP API.
type Server struct {
	e       *echo.Echo
	surface command.Surface
}

// New builds a Server and registers every route under /api.
func New(surface command.Surface) *Server {
	e := echo.New()
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{e: e, surface: surface}

	group := e.Group("/api")

	group.POST("/sessions", s.createSession)
	group.GET("/sessions", s.listSessions)
	group.GET("/sessions/:id", s.getSession)
	group.PUT("/sessions/:id", s.updateSession)
	group.DELETE("/sessions/:id", s.deleteSession)
	group.POST("/sessions/:id/favorite", s.toggleFavorite)
	group.POST("/sessions/:id/folder", s.moveSessionToFolder)

	group.POST("/sessions/:id/messages", s.postMessage)
	group.GET("/sessions/:id/messages", s.listMessages)
	group.DELETE("/messages/:id", s.deleteMessage)

	group.POST("/sessions/:id/files", s.uploadFileForSession)
	group.GET("/files", s.listLibraryFiles)
	group.GET("/sessions/:id/files", s.listFilesForSession)
	group.DELETE("/files/:id", s.deleteFile)
	group.POST("/files/generated", s.saveGeneratedFile)
	group.POST("/files/reindex", s.reindexLibrary)
	group.POST("/files/:id/folder", s.moveFileToFolder)

	group.GET("/folders", s.listFolders)
	group.POST("/folders", s.createFolder)
	group.DELETE("/folders/:id", s.deleteFolder)

	group.POST("/system/initialize", s.initialize)
	group.GET("/system/preflight", s.preflightCheck)
	group.GET("/system/diagnostics", s.diagnostics)
	group.POST("/system/model/download", s.downloadModel)

	return s
}

// Serve runs the HTTP server over an already-bound listener, blocking
// until it closes.
func (s *Server) Serve(ln net.Listener) error {
	srv := http.Server{Handler: s.e}
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// respondError renders a core error as a JSON body with a status code
// derived from its Code, matching the teacher's "always JSON, never a
// bare 500 page" convention.
func respondError(c echo.Context, err error) error {
	return c.JSON(statusFor(coreerr.CodeOf(err)), map[string]string{"error": err.Error()})
}

func statusFor(code coreerr.Code) int {
	switch code {
	case coreerr.InvalidInput, coreerr.UnsupportedFormat:
		return http.StatusBadRequest
	case coreerr.NotFound:
		return http.StatusNotFound
	case coreerr.Conflict:
		return http.StatusConflict
	case coreerr.RateLimited:
		return http.StatusTooManyRequests
	case coreerr.SessionBusy:
		return http.StatusLocked
	case coreerr.TemporarilyUnavailable, coreerr.ServerUnrecoverable:
		return http.StatusServiceUnavailable
	case coreerr.Cancelled:
		return 499 // client closed request, matching the nginx convention
	default:
		return http.StatusInternalServerError
	}
}

// --- Sessions -------------------------------------------------------------

type createSessionRequest struct {
	Title string             `json:"title"`
	Model *store.ModelConfig `json:"model,omitempty"`
}

func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	sess, err := s.surface.CreateSession(c.Request().Context(), req.Title, req.Model)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) listSessions(c echo.Context) error {
	sessions, err := s.surface.ListSessions(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

func (s *Server) getSession(c echo.Context) error {
	sess, err := s.surface.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if sess == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, sess)
}

type updateSessionRequest struct {
	Title *string            `json:"title,omitempty"`
	Model *store.ModelConfig `json:"model,omitempty"`
}

func (s *Server) updateSession(c echo.Context) error {
	var req updateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	sess, err := s.surface.UpdateSession(c.Request().Context(), c.Param("id"), req.Title, req.Model)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) deleteSession(c echo.Context) error {
	if err := s.surface.DeleteSession(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) toggleFavorite(c echo.Context) error {
	if err := s.surface.ToggleFavorite(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type moveFolderRequest struct {
	FolderID *string `json:"folder_id"`
}

func (s *Server) moveSessionToFolder(c echo.Context) error {
	var req moveFolderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := s.surface.MoveSessionToFolder(c.Request().Context(), c.Param("id"), req.FolderID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Messages: streamed as SSE ---------------------------------------

type postMessageRequest struct {
	Content string `json:"content"`
}

// postMessage streams ThinkingStep/BrainAnalysis/ChatToken events as SSE
// while the turn runs, then emits a final "result" event (or an "error"
// event when the turn fails with anything other than a stream timeout),
// mirroring the teacher's runAgent SSE handler.
func (s *Server) postMessage(c echo.Context) error {
	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	events := make(chan supervisor.Event, 32)
	done := make(chan struct{})

	go func() {
		defer close(done)
		c.Response().Header().Set("Content-Type", "text/event-stream")
		c.Response().Header().Set("Cache-Control", "no-cache")
		c.Response().Header().Set("Connection", "keep-alive")
		c.Response().WriteHeader(http.StatusOK)

		for event := range events {
			writeSSE(c, "event", event)
		}
	}()

	result, err := s.surface.PostMessage(c.Request().Context(), supervisor.TurnRequest{
		SessionID:   c.Param("id"),
		UserContent: req.Content,
		Emit:        events,
	})
	close(events)
	<-done

	if err != nil && !coreerr.Is(err, coreerr.StreamTimeout) {
		writeSSE(c, "error", map[string]string{"error": err.Error()})
		return nil
	}
	writeSSE(c, "result", result)
	return nil
}

func writeSSE(c echo.Context, eventName string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", eventName, string(data))
	c.Response().Flush()
}

func (s *Server) listMessages(c echo.Context) error {
	msgs, err := s.surface.ListMessages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) deleteMessage(c echo.Context) error {
	if err := s.surface.DeleteMessage(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Files ------------------------------------------------------------

func (s *Server) uploadFileForSession(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing file field"})
	}
	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "cannot open uploaded file"})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "cannot read uploaded file"})
	}

	file, err := s.surface.UploadFileForSession(c.Request().Context(), c.Param("id"), fileHeader.Filename, data)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, file)
}

func (s *Server) listLibraryFiles(c echo.Context) error {
	files, err := s.surface.ListLibraryFiles(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, files)
}

func (s *Server) listFilesForSession(c echo.Context) error {
	files, err := s.surface.ListFilesForSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, files)
}

func (s *Server) deleteFile(c echo.Context) error {
	if err := s.surface.DeleteFile(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type saveGeneratedFileRequest struct {
	Name string `json:"name"`
	Ext  string `json:"ext"`
	Data []byte `json:"data"` // base64-decoded by encoding/json automatically
}

func (s *Server) saveGeneratedFile(c echo.Context) error {
	var req saveGeneratedFileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	file, err := s.surface.SaveGeneratedFile(c.Request().Context(), req.Name, req.Ext, req.Data)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, file)
}

func (s *Server) reindexLibrary(c echo.Context) error {
	report, err := s.surface.ReindexLibrary(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) moveFileToFolder(c echo.Context) error {
	var req moveFolderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := s.surface.MoveFileToFolder(c.Request().Context(), c.Param("id"), req.FolderID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Folders ------------------------------------------------------------

func (s *Server) listFolders(c echo.Context) error {
	folders, err := s.surface.ListFolders(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, folders)
}

type createFolderRequest struct {
	Name       string          `json:"name"`
	FolderType store.FolderType `json:"folder_type"`
	Color      string          `json:"color"`
	SortOrder  int64           `json:"sort_order"`
}

func (s *Server) createFolder(c echo.Context) error {
	var req createFolderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	folder, err := s.surface.CreateFolder(c.Request().Context(), req.Name, req.FolderType, req.Color, req.SortOrder)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, folder)
}

func (s *Server) deleteFolder(c echo.Context) error {
	if err := s.surface.DeleteFolder(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- System -------------------------------------------------------------

func (s *Server) initialize(c echo.Context) error {
	if err := s.surface.Initialize(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) preflightCheck(c echo.Context) error {
	report, err := s.surface.PreflightCheck(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) diagnostics(c echo.Context) error {
	report, err := s.surface.Diagnostics(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// downloadModel streams percent/status updates as SSE while the model
// weights download runs.
func (s *Server) downloadModel(c echo.Context) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	progress := func(percent int) {
		writeSSE(c, "progress", map[string]int{"percent": percent})
	}
	status := func(step, detail string) {
		writeSSE(c, "status", map[string]string{"step": step, "detail": detail})
	}

	if err := s.surface.DownloadModel(c.Request().Context(), progress, status); err != nil {
		writeSSE(c, "error", map[string]string{"error": err.Error()})
		return nil
	}
	return nil
}
