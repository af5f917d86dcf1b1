package llmclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/whytchat/core/pkg/coreerr"
)

const (
	maxRestarts    = 3
	restartWindow  = 60 * time.Second
	streamTotalTimeout     = 120 * time.Second
	streamInterChunkTimeout = 30 * time.Second
)

// Client owns exactly one model-server subprocess and its loopback HTTP
// client. Completions are serialized on a single-slot semaphore: one
// generation in flight at a time, matching the spec's shared-subprocess
// resource policy.
type Client struct {
	cfg Config

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	sdk     *openai.Client
	secret  []byte
	bearer  string
	idleTimer *time.Timer

	restarts          []time.Time
	restartsExhausted bool
	breaker           *circuitBreaker
	genSemaphore      chan struct{}
}

// New builds a Client in the Down state; no subprocess is spawned until
// the first request.
func New(cfg Config) *Client {
	return &Client{
		cfg:          cfg,
		state:        StateDown,
		breaker:      newCircuitBreaker(),
		genSemaphore: make(chan struct{}, 1),
	}
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the configuration the Client was built with, for
// read-only inspection (e.g. preflight checks).
func (c *Client) Config() Config {
	return c.cfg
}

// Embeddings ensures the subprocess is up and returns an SDK client
// pointed at its loopback /v1 endpoint, for callers that need
// /v1/embeddings rather than /v1/chat/completions. The returned client
// carries the subprocess's current bearer token, which rotates on
// every restart, so callers must not cache it across calls.
func (c *Client) Embeddings(ctx context.Context) (*openai.Client, error) {
	if err := c.ensureUp(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sdk, nil
}

// ensureUp spawns the subprocess and waits for a healthy /health response
// if the client isn't already Up. Safe to call before every request.
func (c *Client) ensureUp(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateUp {
		c.resetIdleTimerLocked()
		c.mu.Unlock()
		return nil
	}
	if c.restartsExhausted {
		c.mu.Unlock()
		return coreerr.New(coreerr.ServerUnrecoverable, "model server exceeded its restart budget")
	}
	c.mu.Unlock()

	if !c.breaker.allow(time.Now()) {
		return coreerr.New(coreerr.TemporarilyUnavailable, "circuit breaker open")
	}

	return c.start(ctx)
}

func (c *Client) start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateUp {
		return nil
	}
	if c.restartsExhausted {
		return coreerr.New(coreerr.ServerUnrecoverable, "model server exceeded its restart budget")
	}
	c.state = StateStarting

	token, secret, err := mintBearerToken(c.cfg.StartupTimeout + c.cfg.IdleShutdown)
	if err != nil {
		c.state = StateDown
		return err
	}
	c.bearer = token
	c.secret = secret

	args := []string{
		"--model", c.cfg.ModelPath,
		"--port", strconv.Itoa(c.cfg.Port),
		"--ctx-size", strconv.Itoa(c.cfg.ContextSize),
		"--n-gpu-layers", strconv.Itoa(c.cfg.GPULayers),
		"--api-key", token,
	}
	cmd := exec.CommandContext(context.Background(), c.cfg.BinaryPath, args...)
	if err := cmd.Start(); err != nil {
		c.state = StateDown
		return coreerr.Wrap(coreerr.StartupFailed, "spawn model server", err)
	}
	c.cmd = cmd

	origin := fmt.Sprintf("http://127.0.0.1:%d", c.cfg.Port)
	sdk := openai.NewClient(option.WithBaseURL(origin+"/v1"), option.WithAPIKey(token))
	c.sdk = &sdk

	startupCtx, cancel := context.WithTimeout(ctx, c.cfg.StartupTimeout)
	defer cancel()
	if err := c.waitHealthy(startupCtx, origin); err != nil {
		_ = cmd.Process.Kill()
		c.state = StateDown
		return coreerr.Wrap(coreerr.StartupFailed, "model server did not become healthy", err)
	}

	c.state = StateUp
	c.resetIdleTimerLocked()
	go c.watchProcessExit(cmd)
	return nil
}

func (c *Client) waitHealthy(ctx context.Context, origin string) error {
	httpClient := &http.Client{Timeout: c.cfg.HealthTimeout}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/health", nil)
		if err == nil {
			if resp, err := httpClient.Do(req); err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) watchProcessExit(cmd *exec.Cmd) {
	err := cmd.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != cmd {
		return // already superseded by a later start
	}
	c.state = StateDown
	slog.Warn("llmclient: model server exited", "error", err)

	now := time.Now()
	cutoff := now.Add(-restartWindow)
	pruned := c.restarts[:0]
	for _, t := range c.restarts {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	c.restarts = append(pruned, now)

	if len(c.restarts) > maxRestarts {
		c.restartsExhausted = true
		slog.Error("llmclient: exceeded restart budget, staying down", "restarts", len(c.restarts))
		return
	}
	// Next request's ensureUp will spawn a fresh subprocess.
}

func (c *Client) resetIdleTimerLocked() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.cfg.IdleShutdown, c.shutdownIdle)
}

func (c *Client) shutdownIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.state != StateUp {
		return
	}
	slog.Info("llmclient: shutting down idle model server")
	_ = c.cmd.Process.Kill()
	c.state = StateDown
}

// Stop terminates the subprocess unconditionally and marks the Client
// Down. It does not disable the Client: a later request goes through
// ensureUp and spawns a fresh subprocess.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	c.state = StateDown
}
