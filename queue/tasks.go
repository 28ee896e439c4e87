// Package queue dispatches pipeline runs onto a background worker pool and
// tracks per-task state for the status endpoint.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const TypeProcessPhoto = "lenstagger:process_photo"

const (
	taskMetaPrefix = "lenstagger:task-meta-"
	taskMetaTTL    = 24 * time.Hour
)

type ProcessPhotoPayload struct {
	TaskID   string `json:"task_id"`
	PhotoID  int64  `json:"photo_id"`
	FilePath string `json:"file_path"`
}

type TaskState struct {
	Status    string         `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	UpdatedAt string         `json:"updated_at"`
}

func setTaskState(ctx context.Context, rdb *redis.Client, taskID, status string, result map[string]any) {
	state := TaskState{
		Status:    status,
		Result:    result,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	rdb.Set(ctx, taskMetaPrefix+taskID, data, taskMetaTTL)
}

func getTaskState(ctx context.Context, rdb *redis.Client, taskID string) (*TaskState, error) {
	data, err := rdb.Get(ctx, taskMetaPrefix+taskID).Bytes()
	if err != nil {
		return nil, err
	}
	var state TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
