package llmclient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/whytchat/core/pkg/coreerr"
)

// StreamCompletion spawns/confirms the subprocess is Up, then streams a
// chat completion, invoking onToken for each non-empty delta in order
// and returning the full concatenated text. Partial text is returned
// alongside a StreamTimeout error if either timeout fires, so callers can
// persist a truncated assistant message.
func (c *Client) StreamCompletion(ctx context.Context, req CompletionRequest, onToken TokenCallback) (string, error) {
	select {
	case c.genSemaphore <- struct{}{}:
	case <-ctx.Done():
		return "", coreerr.Wrap(coreerr.Cancelled, "stream completion", ctx.Err())
	}
	defer func() { <-c.genSemaphore }()

	if err := c.ensureUp(ctx); err != nil {
		return "", err
	}

	text, err := c.runStream(ctx, req, onToken)
	now := time.Now()
	if err != nil && !errors.Is(err, context.Canceled) {
		if code, ok := extractHTTPStatusCode(err); ok && isRetryableStatusCode(code) {
			c.breaker.recordFailure(now)
		} else if coreerr.Is(err, coreerr.StreamTimeout) || coreerr.Is(err, coreerr.ProtocolError) {
			c.breaker.recordFailure(now)
		}
	} else {
		c.breaker.recordSuccess()
	}
	return text, err
}

func (c *Client) runStream(ctx context.Context, req CompletionRequest, onToken TokenCallback) (string, error) {
	totalCtx, cancelTotal := context.WithTimeout(ctx, streamTotalTimeout)
	defer cancelTotal()

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserContent))

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	c.mu.Lock()
	sdk := c.sdk
	c.mu.Unlock()
	if sdk == nil {
		return "", coreerr.New(coreerr.ServerUnrecoverable, "model server not initialized")
	}

	stream := sdk.Chat.Completions.NewStreaming(totalCtx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Temperature: openai.Float(float64(req.Temperature)),
		MaxTokens:   openai.Int(int64(maxTokens)),
	})
	defer stream.Close()

	var accumulated strings.Builder
	interChunk := time.NewTimer(streamInterChunkTimeout)
	defer interChunk.Stop()

	done := make(chan error, 1)
	go func() {
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta != "" {
				accumulated.WriteString(delta)
				if onToken != nil {
					onToken(delta)
				}
				if !interChunk.Stop() {
					select {
					case <-interChunk.C:
					default:
					}
				}
				interChunk.Reset(streamInterChunkTimeout)
			}
		}
		done <- stream.Err()
	}()

	select {
	case err := <-done:
		if err != nil {
			return accumulated.String(), coreerr.Wrap(coreerr.ProtocolError, "stream chat completion", err)
		}
		return accumulated.String(), nil
	case <-totalCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return accumulated.String(), coreerr.Wrap(coreerr.Cancelled, "stream cancelled", ctx.Err())
		}
		return accumulated.String(), coreerr.New(coreerr.StreamTimeout, "total stream timeout exceeded")
	case <-interChunk.C:
		cancelTotal()
		return accumulated.String(), coreerr.New(coreerr.StreamTimeout, "inter-chunk timeout exceeded")
	}
}
