package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/krau/lenstagger/pipeline"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "model not ready is terminal",
			err:  fmt.Errorf("caption stage: %w", pipeline.ErrModelNotReady),
			want: false,
		},
		{
			name: "unreadable image is terminal",
			err:  fmt.Errorf("%w: uploads/x.jpg", pipeline.ErrUnreadableImage),
			want: false,
		},
		{
			name: "scoring failure retries",
			err:  fmt.Errorf("%w: resource exhausted", pipeline.ErrScoringFailed),
			want: true,
		},
		{
			name: "persistence failure retries",
			err:  fmt.Errorf("%w: database is locked", pipeline.ErrPersistenceFailed),
			want: true,
		},
		{
			name: "unknown errors retry",
			err:  errors.New("boom"),
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
