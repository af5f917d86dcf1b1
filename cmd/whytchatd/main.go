// Command whytchatd runs the Whytchat orchestration core as a
// standalone daemon: it loads configuration, wires every component via
// pkg/app, and serves the Command Surface over HTTP until interrupted.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/whytchat/core/pkg/app"
	"github.com/whytchat/core/pkg/appconfig"
	"github.com/whytchat/core/pkg/command/httpapi"
)

type serveFlags struct {
	configPath string
	listenAddr string
	baseDir    string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "whytchatd",
		Short: "whytchatd - local-first conversational AI orchestration daemon",
		RunE:  flags.run,
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file (optional, defaults used when absent)")
	cmd.Flags().StringVarP(&flags.listenAddr, "listen", "l", "", "Address to listen on, overrides config (e.g. :8080, unix:///tmp/whytchat.sock)")
	cmd.Flags().StringVar(&flags.baseDir, "base-dir", "", "Base directory for on-disk state, overrides config")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug-level logging")

	return cmd
}

func (f *serveFlags) run(cmd *cobra.Command, _ []string) error {
	f.setupLogging()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(f)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wiring application: %w", err)
	}
	defer a.Close()

	if err := a.Surface.Initialize(ctx); err != nil {
		slog.Warn("whytchatd: preflight checks did not fully pass, continuing", "error", err)
	}

	ln, err := httpapi.Listen(ctx, cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	slog.Info("whytchatd: listening", "addr", ln.Addr().String())
	return a.Serve(ln)
}

func resolveConfig(f *serveFlags) (appconfig.Config, error) {
	var cfg appconfig.Config
	var err error
	if f.configPath != "" {
		cfg, err = appconfig.Load(f.configPath)
		if err != nil {
			return appconfig.Config{}, err
		}
	} else {
		cfg = appconfig.Default()
	}

	if f.listenAddr != "" {
		cfg.ListenAddr = f.listenAddr
	}
	if f.baseDir != "" {
		cfg.BaseDir = f.baseDir
	}
	return cfg, nil
}

func (f *serveFlags) setupLogging() {
	level := slog.LevelInfo
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			level = slog.LevelInfo
		}
	}
	if f.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
