package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/krau/lenstagger/config"
)

// ErrAlreadyQueued means a run for this photo is already pending or active.
var ErrAlreadyQueued = errors.New("photo already queued for processing")

// ErrTaskNotFound means no state is recorded for the given task id.
var ErrTaskNotFound = errors.New("task not found")

// Dispatcher enqueues pipeline runs. Uploads return as soon as the task is
// queued; processing happens on the worker.
type Dispatcher struct {
	client *asynq.Client
	redis  *redis.Client
	logger *slog.Logger
}

func RedisOpt() asynq.RedisClientOpt {
	cfg := config.C()
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func NewDispatcher(rdb *redis.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: asynq.NewClient(RedisOpt()),
		redis:  rdb,
		logger: logger,
	}
}

func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// EnqueueProcess queues one pipeline run for a photo and returns the task
// id to poll. The asynq task id is keyed by photo id, so concurrent
// reprocess requests for the same photo collapse into the run already in
// flight instead of racing the association rewrite.
func (d *Dispatcher) EnqueueProcess(ctx context.Context, photoID int64, filePath string) (string, error) {
	cfg := config.C()
	taskID := uuid.NewString()
	payload, err := json.Marshal(ProcessPhotoPayload{
		TaskID:   taskID,
		PhotoID:  photoID,
		FilePath: filePath,
	})
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TypeProcessPhoto, payload)
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(cfg.QueueName),
		asynq.TaskID(fmt.Sprintf("photo:%d", photoID)),
		asynq.Timeout(time.Duration(cfg.TaskTimeout)*time.Second),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return "", fmt.Errorf("%w: photo_id=%d", ErrAlreadyQueued, photoID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue photo %d: %w", photoID, err)
	}

	setTaskState(ctx, d.redis, taskID, "PENDING", map[string]any{
		"photo_id": photoID,
	})
	d.logger.Info("photo queued for processing",
		slog.Int64("photo_id", photoID), slog.String("task_id", taskID))
	return taskID, nil
}

// TaskState returns the recorded state of a task.
func (d *Dispatcher) TaskState(ctx context.Context, taskID string) (*TaskState, error) {
	state, err := getTaskState(ctx, d.redis, taskID)
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}
