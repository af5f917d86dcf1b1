package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whytchat/core/pkg/secrets"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	secretStore := secrets.New(filepath.Join(dir, ".encryption_key"), secrets.WithKeyring(keyring.NewArrayKeyring(nil)))
	s, err := Open(filepath.Join(dir, "whytchat.db"), secretStore)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.CreateSession(ctx, "hello", DefaultModelConfig())
	require.NoError(t, err)

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Title)
	assert.Equal(t, DefaultModelConfig(), got.ModelConfig)
	assert.False(t, got.IsFavorite)
}

func TestGetSessionMissingReturnsNilNotError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	got, err := s.GetSession(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListSessionsPinnedThenSorted(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	idA, err := s.CreateSession(ctx, "a", DefaultModelConfig())
	require.NoError(t, err)
	idB, err := s.CreateSession(ctx, "b", DefaultModelConfig())
	require.NoError(t, err)

	require.NoError(t, s.ToggleFavorite(ctx, idB))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, idB, list[0].ID)
	assert.Equal(t, idA, list[1].ID)
}

func TestDeleteSessionCascadesMessagesAndLinks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sessionID, err := s.CreateSession(ctx, "s", DefaultModelConfig())
	require.NoError(t, err)
	fileID, err := s.CreateLibraryFile(ctx, "notes.txt", "txt", 10)
	require.NoError(t, err)
	require.NoError(t, s.LinkFileToSession(ctx, sessionID, fileID))
	_, err = s.SaveMessage(ctx, sessionID, RoleUser, "hi", nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, sessionID))

	msgs, err := s.GetMessages(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	files, err := s.ListFilesForSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLinkFileToSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sessionID, err := s.CreateSession(ctx, "s", DefaultModelConfig())
	require.NoError(t, err)
	fileID, err := s.CreateLibraryFile(ctx, "a.txt", "txt", 1)
	require.NoError(t, err)

	require.NoError(t, s.LinkFileToSession(ctx, sessionID, fileID))
	require.NoError(t, s.LinkFileToSession(ctx, sessionID, fileID))

	files, err := s.ListFilesForSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestMessagesAreChronological(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sessionID, err := s.CreateSession(ctx, "s", DefaultModelConfig())
	require.NoError(t, err)

	_, err = s.SaveMessage(ctx, sessionID, RoleUser, "first", nil)
	require.NoError(t, err)
	_, err = s.SaveMessage(ctx, sessionID, RoleAssistant, "second", nil)
	require.NoError(t, err)

	msgs, err := s.GetMessages(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}
