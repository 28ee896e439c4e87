package model

import "errors"

// Sentinel errors shared by the pipeline and the HTTP surface.
var (
	ErrModelNotReady   = errors.New("model not ready")
	ErrUnreadableImage = errors.New("unreadable image")
)
