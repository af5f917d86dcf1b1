// Package supervisor implements the Supervisor component: it orchestrates
// one user turn through Brain -> RAG -> LLM, in order, emitting progress
// events and persisting both sides of the turn.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whytchat/core/pkg/brain"
	"github.com/whytchat/core/pkg/coreerr"
	"github.com/whytchat/core/pkg/concurrent"
	"github.com/whytchat/core/pkg/llmclient"
	"github.com/whytchat/core/pkg/ratelimit"
	"github.com/whytchat/core/pkg/store"
	"github.com/whytchat/core/pkg/vectorstore"
)

const ragTopK = 5

// Streamer is the capability Supervisor depends on for completions —
// satisfied by *llmclient.Client, and by fakes in tests. Keeping this as
// an interface (rather than a concrete dependency) follows the same
// dynamic-dispatch principle the spec applies to TextExtractor/Embedder.
type Streamer interface {
	StreamCompletion(ctx context.Context, req llmclient.CompletionRequest, onToken llmclient.TokenCallback) (string, error)
}

// TurnRequest is one user turn: a session to post into, the user's raw
// text, and the sink events for this turn are delivered to.
type TurnRequest struct {
	SessionID   string
	UserContent string
	Emit        Sink
}

// TurnResult is returned after a turn completes (or fails).
type TurnResult struct {
	AssistantText string
	Truncated     bool
}

// Supervisor ties together Persistence, Brain, VectorStore, and
// LlmClient to execute one turn at a time per session.
type Supervisor struct {
	store       *store.Store
	brain       *brain.Brain
	vectors     *vectorstore.Store
	llm         Streamer
	rateLimiter *ratelimit.Limiter

	sessionLocks *concurrent.Map[string, *sync.Mutex]
}

// New wires a Supervisor from its already-constructed dependencies. None
// of these hold a back-reference to the Supervisor, per the cyclic-wiring
// guidance: everything is owned top-down.
func New(st *store.Store, br *brain.Brain, vs *vectorstore.Store, llm Streamer, rl *ratelimit.Limiter) *Supervisor {
	return &Supervisor{
		store:        st,
		brain:        br,
		vectors:      vs,
		llm:          llm,
		rateLimiter:  rl,
		sessionLocks: concurrent.NewMap[string, *sync.Mutex](),
	}
}

func (s *Supervisor) lockFor(sessionID string) *sync.Mutex {
	lock, _ := s.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return lock
}

// RunTurn executes the full per-turn contract described in the
// Supervisor's design: validate, rate-limit, persist user message,
// analyze, optionally retrieve, compose prompt, stream completion,
// persist assistant message.
func (s *Supervisor) RunTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	correlationID := uuid.New().String()
	log := slog.With("correlation_id", correlationID, "session_id", req.SessionID)

	session, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return TurnResult{}, err
	}
	if session == nil {
		return TurnResult{}, coreerr.New(coreerr.NotFound, "session not found")
	}

	if !s.rateLimiter.Check(req.SessionID, time.Now()) {
		return TurnResult{}, coreerr.New(coreerr.RateLimited, "rate limit exceeded for session")
	}

	lock := s.lockFor(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.store.SaveMessage(ctx, req.SessionID, store.RoleUser, req.UserContent, nil); err != nil {
		return TurnResult{}, err
	}

	s.emit(req.Emit, NewThinkingStep("Analyzing your message…"))
	packet := s.brain.Analyze(ctx, req.UserContent)
	s.emit(req.Emit, NewBrainAnalysis(packet))

	ragContext := ""
	if packet.ShouldUseRAG {
		s.emit(req.Emit, NewThinkingStep("Searching knowledge base…"))
		ragContext = s.retrieveContext(ctx, req.SessionID, req.UserContent, log)
	}

	systemPrompt := composeSystemPrompt(session.ModelConfig.SystemPrompt, packet, ragContext)

	s.emit(req.Emit, NewThinkingStep("Generating response…"))

	var accumulated strings.Builder
	onToken := func(token string) {
		accumulated.WriteString(token)
		s.emit(req.Emit, NewChatToken(token))
	}

	text, streamErr := s.llm.StreamCompletion(ctx, llmclient.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserContent:  req.UserContent,
		Temperature:  session.ModelConfig.Temperature,
	}, onToken)

	if streamErr != nil && coreerr.Is(streamErr, coreerr.Cancelled) {
		log.Info("turn cancelled, not persisting assistant message")
		return TurnResult{}, streamErr
	}

	truncated := false
	finalText := text
	if streamErr != nil && coreerr.Is(streamErr, coreerr.StreamTimeout) {
		truncated = true
		if finalText != "" {
			finalText = finalText + " [truncated]"
		}
	} else if streamErr != nil {
		return TurnResult{}, streamErr
	}

	if finalText != "" {
		if _, err := s.store.SaveMessage(ctx, req.SessionID, store.RoleAssistant, finalText, nil); err != nil {
			return TurnResult{}, err
		}
	}

	if streamErr != nil {
		return TurnResult{AssistantText: finalText, Truncated: truncated}, streamErr
	}
	return TurnResult{AssistantText: finalText, Truncated: truncated}, nil
}

// retrieveContext looks up the session's linked files and searches the
// vector store; any failure is absorbed (logged, empty context) so RAG
// never blocks the reply.
func (s *Supervisor) retrieveContext(ctx context.Context, sessionID, query string, log *slog.Logger) string {
	files, err := s.store.ListFilesForSession(ctx, sessionID)
	if err != nil {
		log.Warn("rag: could not list session files, continuing without context", "error", err)
		return ""
	}
	if len(files) == 0 {
		return ""
	}

	fileIDs := make([]string, len(files))
	for i, f := range files {
		fileIDs[i] = f.ID
	}

	hits, err := s.vectors.Search(ctx, query, fileIDs, ragTopK)
	if err != nil {
		log.Warn("rag: search failed, continuing without context", "error", err)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Relevant context from the knowledge base:\n")
	for i, hit := range hits {
		fmt.Fprintf(&sb, "%d. (score %.4f) %s\n", i+1, hit.Score, hit.Content)
	}
	return sb.String()
}

// composeSystemPrompt builds the final system prompt from a base
// instruction, intent- and language-adaptive additions, and the RAG
// context when non-empty.
func composeSystemPrompt(base string, packet brain.ContextPacket, ragContext string) string {
	var sb strings.Builder
	sb.WriteString(base)

	for _, strategy := range packet.SuggestedStrategies {
		switch strategy {
		case "respond_in_french":
			sb.WriteString("\nRespond in French.")
		case "code_quality_guidance":
			sb.WriteString("\nWhen producing code, favor clarity and include brief explanations.")
		case "structured_reasoning":
			sb.WriteString("\nStructure your answer with clear, sequential reasoning.")
		case "preserve_source_meaning":
			sb.WriteString("\nPreserve the source meaning precisely when translating.")
		}
	}

	if ragContext != "" {
		sb.WriteString("\n\n")
		sb.WriteString(ragContext)
	}

	return sb.String()
}

func (s *Supervisor) emit(sink Sink, event Event) {
	if sink == nil {
		return
	}
	sink <- event
}
