// Package pipeline sequences the tagging stages for one photo: caption,
// keyword extraction, similarity scoring and transactional persistence.
package pipeline

import (
	"errors"

	"github.com/krau/lenstagger/model"
)

// Stage error taxonomy. ErrModelNotReady and ErrUnreadableImage are not
// retryable without operator action; ErrScoringFailed and
// ErrPersistenceFailed are transient and safe to retry wholesale.
var (
	ErrModelNotReady     = model.ErrModelNotReady
	ErrUnreadableImage   = model.ErrUnreadableImage
	ErrScoringFailed     = errors.New("scoring failed")
	ErrPersistenceFailed = errors.New("persistence failed")
)
