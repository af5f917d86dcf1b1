package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/whytchat/core/pkg/coreerr"
)

// defaultModelURL is the weights file fetched by DownloadModel when the
// core is asked to bootstrap a fresh installation. It is a constant:
// nothing in the core overrides it, and there is no model-selection UI
// in the core itself.
const defaultModelURL = "https://huggingface.co/TheBloke/Mistral-7B-Instruct-v0.2-GGUF/resolve/main/mistral-7b-instruct-v0.2.Q4_K_M.gguf"

// Initialize verifies the directory layout and database are ready. Each
// dependency already builds (and migrates) itself in its own
// constructor, so Initialize is a confirming re-check rather than a
// second construction pass — safe to call repeatedly.
func (i *impl) Initialize(ctx context.Context) error {
	report, err := i.PreflightCheck(ctx)
	if err != nil {
		return err
	}
	for _, check := range []CheckResult{report.Paths, report.Database, report.VectorStore} {
		if !check.OK {
			return coreerr.New(coreerr.StartupFailed, check.Detail)
		}
	}
	return nil
}

// PreflightCheck reports whether each dependency the core relies on is
// reachable: the on-disk layout, the database, the vector store, the
// model binary and weights, and the embedder.
func (i *impl) PreflightCheck(ctx context.Context) (PreflightReport, error) {
	return PreflightReport{
		Paths:       i.checkPaths(),
		Database:    i.checkDatabase(ctx),
		VectorStore: i.checkVectorStore(ctx),
		ModelBinary: i.checkModelBinary(),
		ModelWeights: i.checkModelWeights(),
		Embedder:    i.checkVectorStore(ctx), // the only embedder probe available without a direct reference
	}, nil
}

// Diagnostics re-runs the same checks as PreflightCheck but as a flat,
// named list — meant for a support/debug view rather than a single
// go/no-go gate.
func (i *impl) Diagnostics(ctx context.Context) (DiagnosticsReport, error) {
	report, err := i.PreflightCheck(ctx)
	if err != nil {
		return DiagnosticsReport{}, err
	}
	return DiagnosticsReport{
		Checks: []NamedCheckResult{
			{Name: "paths", CheckResult: report.Paths},
			{Name: "database", CheckResult: report.Database},
			{Name: "vector_store", CheckResult: report.VectorStore},
			{Name: "model_binary", CheckResult: report.ModelBinary},
			{Name: "model_weights", CheckResult: report.ModelWeights},
			{Name: "embedder", CheckResult: report.Embedder},
		},
	}, nil
}

func (i *impl) checkPaths() CheckResult {
	for _, dir := range []string{i.paths.Base, i.paths.Vectors, i.paths.Models, i.paths.EmbeddingsCache, i.paths.Files} {
		info, err := os.Stat(dir)
		if err != nil {
			return CheckResult{OK: false, Detail: fmt.Sprintf("missing directory %q: %v", dir, err)}
		}
		if !info.IsDir() {
			return CheckResult{OK: false, Detail: fmt.Sprintf("%q is not a directory", dir)}
		}
	}
	return CheckResult{OK: true}
}

func (i *impl) checkDatabase(ctx context.Context) CheckResult {
	if _, err := i.store.ListSessions(ctx); err != nil {
		return CheckResult{OK: false, Detail: err.Error()}
	}
	return CheckResult{OK: true}
}

func (i *impl) checkVectorStore(ctx context.Context) CheckResult {
	if _, err := i.vectors.Search(ctx, "preflight", nil, 1); err != nil {
		return CheckResult{OK: false, Detail: err.Error()}
	}
	return CheckResult{OK: true}
}

func (i *impl) checkModelBinary() CheckResult {
	if i.llm == nil {
		return CheckResult{OK: false, Detail: "no llm client configured"}
	}
	path := i.llm.Config().BinaryPath
	if _, err := os.Stat(path); err != nil {
		return CheckResult{OK: false, Detail: fmt.Sprintf("model binary %q: %v", path, err)}
	}
	return CheckResult{OK: true}
}

func (i *impl) checkModelWeights() CheckResult {
	if i.llm == nil {
		return CheckResult{OK: false, Detail: "no llm client configured"}
	}
	path := i.llm.Config().ModelPath
	if _, err := os.Stat(path); err != nil {
		return CheckResult{OK: false, Detail: fmt.Sprintf("model weights %q: %v", path, err)}
	}
	return CheckResult{OK: true}
}

// DownloadModel fetches the default model's weights file into the
// models directory, reporting byte progress as a percentage of
// Content-Length (when the server supplies one) and coarse status steps.
func (i *impl) DownloadModel(ctx context.Context, progress func(percent int), status func(step, detail string)) error {
	status("starting", defaultModelURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, defaultModelURL, nil)
	if err != nil {
		return coreerr.Wrap(coreerr.StartupFailed, "build download request", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return coreerr.Wrap(coreerr.StartupFailed, "download model weights", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return coreerr.New(coreerr.StartupFailed, fmt.Sprintf("download model weights: unexpected status %d", resp.StatusCode))
	}

	status("downloading", fmt.Sprintf("%d bytes", resp.ContentLength))

	tmpFile, err := os.CreateTemp(i.paths.Models, "download-*.tmp")
	if err != nil {
		return coreerr.Wrap(coreerr.StartupFailed, "create temp download file", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	pw := &progressWriter{total: resp.ContentLength, onPercent: progress}
	if _, err := io.Copy(io.MultiWriter(tmpFile, pw), resp.Body); err != nil {
		tmpFile.Close()
		return coreerr.Wrap(coreerr.StartupFailed, "write model weights", err)
	}
	if err := tmpFile.Close(); err != nil {
		return coreerr.Wrap(coreerr.StartupFailed, "close temp download file", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return coreerr.Wrap(coreerr.StartupFailed, "reread downloaded weights", err)
	}

	destPath := filepath.Join(i.paths.Models, filepath.Base(defaultModelURL))
	if err := atomic.WriteFile(destPath, bytes.NewReader(data)); err != nil {
		return coreerr.Wrap(coreerr.StartupFailed, "install model weights", err)
	}

	status("complete", destPath)
	progress(100)
	return nil
}

type progressWriter struct {
	total     int64
	written   int64
	lastPct   int
	onPercent func(percent int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 && p.onPercent != nil {
		pct := int(p.written * 100 / p.total)
		if pct != p.lastPct {
			p.lastPct = pct
			p.onPercent(pct)
		}
	}
	return len(b), nil
}
