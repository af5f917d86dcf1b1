// Package app is the composition root: it wires every component into a
// running daemon in dependency order, the way the teacher's cmd/root
// commands wire a runtime and hand it to pkg/server. Nothing here
// implements domain logic; it only constructs and connects.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"

	"github.com/openai/openai-go/v3"

	"github.com/whytchat/core/pkg/appconfig"
	"github.com/whytchat/core/pkg/brain"
	"github.com/whytchat/core/pkg/command"
	"github.com/whytchat/core/pkg/command/httpapi"
	"github.com/whytchat/core/pkg/embed"
	"github.com/whytchat/core/pkg/extract"
	"github.com/whytchat/core/pkg/llmclient"
	"github.com/whytchat/core/pkg/paths"
	"github.com/whytchat/core/pkg/ratelimit"
	"github.com/whytchat/core/pkg/secrets"
	"github.com/whytchat/core/pkg/store"
	"github.com/whytchat/core/pkg/supervisor"
	"github.com/whytchat/core/pkg/vectorstore"
)

// App holds every long-lived component plus the HTTP surface in front
// of them, so Close can shut them down in reverse dependency order.
type App struct {
	Paths   *paths.Paths
	Store   *store.Store
	Vectors *vectorstore.Store
	LLM     *llmclient.Client
	Limiter *ratelimit.Limiter
	Surface command.Surface
	Server  *httpapi.Server
}

// New builds every component from cfg, in dependency order: Paths,
// then secrets, then storage, then the capability adapters, then the
// Supervisor, then the Command Surface, then the HTTP adapter in front
// of it. It does not start listening; call Serve for that.
func New(ctx context.Context, cfg appconfig.Config) (*App, error) {
	var p *paths.Paths
	var err error
	if cfg.BaseDir != "" {
		p, err = paths.NewAt(cfg.BaseDir)
	} else {
		p, err = paths.New()
	}
	if err != nil {
		return nil, fmt.Errorf("app: resolving paths: %w", err)
	}

	secretStore := secrets.New(p.SecretKeyFile)

	st, err := store.Open(p.DB, secretStore)
	if err != nil {
		return nil, fmt.Errorf("app: opening store: %w", err)
	}

	llmCfg := llmclient.Config{
		BinaryPath:     cfg.Model.BinaryPath,
		ModelPath:      cfg.Model.ModelPath,
		Port:           cfg.Model.Port,
		ContextSize:    cfg.Model.ContextSize,
		GPULayers:      cfg.Model.GPULayers,
		HealthTimeout:  cfg.Model.HealthTimeout,
		StartupTimeout: cfg.Model.StartupTimeout,
		IdleShutdown:   cfg.Model.IdleShutdown,
	}
	llm := llmclient.New(llmCfg)

	embedder := embed.NewLazyHTTPEmbedder(
		func(ctx context.Context) (*openai.Client, error) { return llm.Embeddings(ctx) },
		cfg.Model.EmbeddingModel,
	)

	vs, err := vectorstore.Open(filepath.Join(p.Vectors, "vectors.db"), embedder)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("app: opening vector store: %w", err)
	}

	reg := extract.NewRegistry()

	br, err := brain.New(embedder)
	if err != nil {
		st.Close()
		vs.Close()
		return nil, fmt.Errorf("app: building brain: %w", err)
	}

	rl := ratelimit.NewWithPolicy(cfg.RateLimitBudget, cfg.RateLimitWindow)

	sup := supervisor.New(st, br, vs, llm, rl)

	surface := command.New(p, st, vs, reg, sup, llm)

	srv := httpapi.New(surface)

	return &App{
		Paths:   p,
		Store:   st,
		Vectors: vs,
		LLM:     llm,
		Limiter: rl,
		Surface: surface,
		Server:  srv,
	}, nil
}

// Serve blocks serving the HTTP adapter on ln until it is closed.
func (a *App) Serve(ln net.Listener) error {
	return a.Server.Serve(ln)
}

// Close shuts down every owned component in reverse build order. Safe
// to call once after Serve returns (on listener close) or on startup
// failure cleanup.
func (a *App) Close() {
	a.Limiter.Close()
	if err := a.Vectors.Close(); err != nil {
		slog.Warn("app: closing vector store", "error", err)
	}
	a.LLM.Stop()
	if err := a.Store.Close(); err != nil {
		slog.Warn("app: closing store", "error", err)
	}
}
