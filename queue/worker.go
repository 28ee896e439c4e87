package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/krau/lenstagger/config"
	"github.com/krau/lenstagger/pipeline"
)

// Worker consumes queued pipeline runs with bounded concurrency.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	redis  *redis.Client
	pipe   *pipeline.Pipeline
	logger *slog.Logger
}

func NewWorker(rdb *redis.Client, pipe *pipeline.Pipeline, logger *slog.Logger) *Worker {
	cfg := config.C()
	server := asynq.NewServer(RedisOpt(), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.QueueName: 1},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		redis:  rdb,
		pipe:   pipe,
		logger: logger,
	}
	w.mux.HandleFunc(TypeProcessPhoto, w.handleProcessPhoto)
	return w
}

func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleProcessPhoto(ctx context.Context, t *asynq.Task) error {
	var payload ProcessPhotoPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("bad task payload: %v: %w", err, asynq.SkipRetry)
	}

	setTaskState(ctx, w.redis, payload.TaskID, "PROGRESS", map[string]any{
		"photo_id": payload.PhotoID,
		"status":   "processing",
	})

	tags, err := w.pipe.Process(ctx, payload.PhotoID, payload.FilePath)
	if err != nil {
		w.logger.Error("pipeline run failed",
			slog.Int64("photo_id", payload.PhotoID),
			slog.String("error", err.Error()))
		setTaskState(ctx, w.redis, payload.TaskID, "FAILURE", map[string]any{
			"photo_id": payload.PhotoID,
			"message":  err.Error(),
		})
		if !Retryable(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	setTaskState(ctx, w.redis, payload.TaskID, "SUCCESS", map[string]any{
		"photo_id": payload.PhotoID,
		"tags":     tags,
	})
	w.logger.Info("photo processed",
		slog.Int64("photo_id", payload.PhotoID), slog.Int("tags", len(tags)))
	return nil
}

// Retryable classifies pipeline errors: scoring and persistence failures
// are transient, a missing model or undecodable file will not improve on
// automatic retry.
func Retryable(err error) bool {
	if errors.Is(err, pipeline.ErrModelNotReady) || errors.Is(err, pipeline.ErrUnreadableImage) {
		return false
	}
	return true
}
