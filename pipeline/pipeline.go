package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/krau/lenstagger/config"
	"github.com/krau/lenstagger/keywords"
	"github.com/krau/lenstagger/model"
	"github.com/krau/lenstagger/store"
)

// Models exposes the registry's handles. Accessors return nil until the
// registry has loaded.
type Models interface {
	Captioner() model.Captioner
	Scorer() model.Scorer
}

// Saver is the narrow persistence contract the pipeline needs.
type Saver interface {
	SaveResult(ctx context.Context, photoID int64, caption string, tags []store.TagScore) error
}

type Pipeline struct {
	models    Models
	saver     Saver
	threshold float64
	logger    *slog.Logger

	// stage hooks, overridable in tests
	extract func(caption string) []string
	score   func(ctx context.Context, filePath string, candidates []string) ([]store.TagScore, error)
}

func New(models Models, saver Saver, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		models:    models,
		saver:     saver,
		threshold: config.C().Threshold,
		logger:    logger,
		extract:   keywords.Extract,
	}
	p.score = p.scoreTags
	return p
}

// Process runs the full pipeline for one photo. The first failing stage
// terminates the run; nothing is persisted unless every stage succeeded.
// The returned tags are for logging and diagnostics, the persisted rows
// are the authoritative result.
func (p *Pipeline) Process(ctx context.Context, photoID int64, filePath string) ([]store.TagScore, error) {
	caption, err := p.generateCaption(ctx, filePath)
	if err != nil {
		return nil, err
	}
	p.logger.Info("caption generated",
		slog.Int64("photo_id", photoID), slog.String("caption", caption))

	candidates := p.extract(caption)
	p.logger.Info("keywords extracted",
		slog.Int64("photo_id", photoID), slog.Int("count", len(candidates)))

	scored, err := p.score(ctx, filePath, candidates)
	if err != nil {
		return nil, err
	}
	p.logger.Info("tags scored",
		slog.Int64("photo_id", photoID), slog.Int("kept", len(scored)))

	if err := p.saver.SaveResult(ctx, photoID, caption, scored); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return scored, nil
}

func (p *Pipeline) generateCaption(ctx context.Context, filePath string) (string, error) {
	captioner := p.models.Captioner()
	if captioner == nil {
		return "", fmt.Errorf("caption stage: %w", ErrModelNotReady)
	}
	img, err := model.LoadImage(filePath)
	if err != nil {
		return "", err
	}
	caption, err := captioner.Caption(ctx, img)
	if err != nil {
		return "", fmt.Errorf("caption stage: %w", err)
	}
	return caption, nil
}

// scoreTags builds one probe phrase per candidate, scores them against the
// image in a single batched call and keeps candidates whose softmax
// confidence exceeds the threshold, sorted descending. Confidences are
// relative to this candidate set, not calibrated probabilities.
func (p *Pipeline) scoreTags(ctx context.Context, filePath string, candidates []string) ([]store.TagScore, error) {
	if len(candidates) == 0 {
		return []store.TagScore{}, nil
	}
	scorer := p.models.Scorer()
	if scorer == nil {
		return nil, fmt.Errorf("scoring stage: %w", ErrModelNotReady)
	}
	img, err := model.LoadImage(filePath)
	if err != nil {
		return nil, err
	}

	prompts := make([]string, len(candidates))
	for i, kw := range candidates {
		prompts[i] = "a photo of " + kw
	}
	logits, err := scorer.Score(ctx, img, prompts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}
	if len(logits) != len(candidates) {
		return nil, fmt.Errorf("%w: got %d scores for %d candidates", ErrScoringFailed, len(logits), len(candidates))
	}

	probs := softmax(logits)
	scored := make([]store.TagScore, 0, len(candidates))
	for i, kw := range candidates {
		if probs[i] > p.threshold {
			scored = append(scored, store.TagScore{Name: kw, Confidence: probs[i]})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence > scored[j].Confidence
	})
	return scored, nil
}

func softmax(logits []float64) []float64 {
	maxL := logits[0]
	for _, l := range logits[1:] {
		if l > maxL {
			maxL = l
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxL)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
