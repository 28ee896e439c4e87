package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/krau/lenstagger/config"
	"github.com/krau/lenstagger/keywords"
)

// Registry owns the captioning and similarity model handles. It is
// constructed explicitly, loaded once at startup and injected into the
// pipeline; callers must treat nil accessor results as "model not ready".
type Registry struct {
	mu        sync.Mutex
	captioner Captioner
	scorer    Scorer
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Load fetches missing model artifacts and builds the inference sessions.
// It is idempotent and safe to call from racing first users; only one
// initialization runs, later calls return once it has completed.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.captioner != nil && r.scorer != nil {
		return nil
	}

	cfg := config.C()
	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory %s: %w", cfg.ModelDir, err)
	}

	artifacts := []struct {
		name string
		url  string
	}{
		{cfg.CaptionEncoderName, cfg.CaptionEncoderUrl},
		{cfg.CaptionDecoderName, cfg.CaptionDecoderUrl},
		{cfg.CaptionVocabName, cfg.CaptionVocabUrl},
		{cfg.ClipImageName, cfg.ClipImageUrl},
		{cfg.ClipTextName, cfg.ClipTextUrl},
		{cfg.ClipVocabName, cfg.ClipVocabUrl},
	}
	for _, a := range artifacts {
		path := filepath.Join(cfg.ModelDir, a.name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		r.logger.Info("downloading model artifact", slog.String("name", a.name))
		if err := fetchArtifact(ctx, a.url, path); err != nil {
			return fmt.Errorf("failed to fetch %s: %w", a.name, err)
		}
	}

	r.logger.Info("loading caption model")
	captioner, err := newCaptioner(
		filepath.Join(cfg.ModelDir, cfg.CaptionEncoderName),
		filepath.Join(cfg.ModelDir, cfg.CaptionDecoderName),
		filepath.Join(cfg.ModelDir, cfg.CaptionVocabName),
	)
	if err != nil {
		return err
	}

	r.logger.Info("loading similarity model")
	scorer, err := newScorer(
		filepath.Join(cfg.ModelDir, cfg.ClipImageName),
		filepath.Join(cfg.ModelDir, cfg.ClipTextName),
		filepath.Join(cfg.ModelDir, cfg.ClipVocabName),
	)
	if err != nil {
		return err
	}

	// Tagger data ships with the binary, so a failed warm-up only means the
	// extractor will take its regex fallback per call.
	if err := keywords.Warmup(); err != nil {
		r.logger.Warn("keyword tagger warmup failed, regex fallback in effect", slog.String("error", err.Error()))
	}

	r.captioner = captioner
	r.scorer = scorer
	r.logger.Info("models loaded")
	return nil
}

// Ready reports whether Load has completed, for the health surface.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.captioner != nil && r.scorer != nil
}

func (r *Registry) Captioner() Captioner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.captioner
}

func (r *Registry) Scorer() Scorer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scorer
}

func fetchArtifact(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
