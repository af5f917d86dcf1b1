package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whytchat/core/pkg/brain"
	"github.com/whytchat/core/pkg/coreerr"
	"github.com/whytchat/core/pkg/llmclient"
	"github.com/whytchat/core/pkg/ratelimit"
	"github.com/whytchat/core/pkg/secrets"
	"github.com/whytchat/core/pkg/store"
	"github.com/whytchat/core/pkg/vectorstore"
)

type fakeStreamer struct {
	tokens []string
	err    error
}

func (f *fakeStreamer) StreamCompletion(_ context.Context, _ llmclient.CompletionRequest, onToken llmclient.TokenCallback) (string, error) {
	var out string
	for _, tok := range f.tokens {
		onToken(tok)
		out += tok
	}
	return out, f.err
}

type fakeEmbedder struct{}

func (fakeEmbedder) Dimension() int { return 4 }
func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return out, nil
}

func newTestSupervisor(t *testing.T, streamer Streamer) (*Supervisor, *store.Store) {
	t.Helper()
	dir := t.TempDir()

	secretStore := secrets.New(filepath.Join(dir, ".encryption_key"), secrets.WithKeyring(keyring.NewArrayKeyring(nil)))
	st, err := store.Open(filepath.Join(dir, "whytchat.db"), secretStore)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	vs, err := vectorstore.Open(filepath.Join(dir, "vectors.db"), fakeEmbedder{})
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })

	br, err := brain.New(nil)
	require.NoError(t, err)

	rl := ratelimit.NewWithPolicy(20, time.Minute)
	t.Cleanup(rl.Close)

	return New(st, br, vs, streamer, rl), st
}

func TestRunTurnHappyPath(t *testing.T) {
	ctx := context.Background()
	sup, st := newTestSupervisor(t, &fakeStreamer{tokens: []string{"Bon", "jour", "!"}})

	sessionID, err := st.CreateSession(ctx, "hello", store.DefaultModelConfig())
	require.NoError(t, err)

	events := make(chan Event, 16)
	result, err := sup.RunTurn(ctx, TurnRequest{SessionID: sessionID, UserContent: "Bonjour", Emit: events})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour!", result.AssistantText)

	msgs, err := st.GetMessages(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
}

func TestRunTurnUnknownSessionReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	sup, _ := newTestSupervisor(t, &fakeStreamer{tokens: []string{"hi"}})

	_, err := sup.RunTurn(ctx, TurnRequest{SessionID: "ghost", UserContent: "hi"})
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.NotFound))
}

func TestRunTurnRateLimited(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	secretStore := secrets.New(filepath.Join(dir, ".encryption_key"), secrets.WithKeyring(keyring.NewArrayKeyring(nil)))
	st, err := store.Open(filepath.Join(dir, "whytchat.db"), secretStore)
	require.NoError(t, err)
	defer st.Close()

	vs, err := vectorstore.Open(filepath.Join(dir, "vectors.db"), fakeEmbedder{})
	require.NoError(t, err)
	defer vs.Close()

	br, err := brain.New(nil)
	require.NoError(t, err)

	rl := ratelimit.NewWithPolicy(1, time.Minute)
	defer rl.Close()

	sup := New(st, br, vs, &fakeStreamer{tokens: []string{"hi"}}, rl)

	sessionID, err := st.CreateSession(ctx, "s", store.DefaultModelConfig())
	require.NoError(t, err)

	_, err = sup.RunTurn(ctx, TurnRequest{SessionID: sessionID, UserContent: "one"})
	require.NoError(t, err)

	_, err = sup.RunTurn(ctx, TurnRequest{SessionID: sessionID, UserContent: "two"})
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.RateLimited))

	msgs, err := st.GetMessages(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2) // only the first turn's user+assistant pair
}

func TestRunTurnPersistsTruncatedOnStreamTimeout(t *testing.T) {
	ctx := context.Background()
	sup, st := newTestSupervisor(t, &fakeStreamer{
		tokens: []string{"partial "},
		err:    coreerr.New(coreerr.StreamTimeout, "timed out"),
	})

	sessionID, err := st.CreateSession(ctx, "s", store.DefaultModelConfig())
	require.NoError(t, err)

	result, err := sup.RunTurn(ctx, TurnRequest{SessionID: sessionID, UserContent: "go"})
	require.Error(t, err)
	assert.True(t, result.Truncated)
	assert.Contains(t, result.AssistantText, "[truncated]")

	msgs, err := st.GetMessages(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "[truncated]")
}
