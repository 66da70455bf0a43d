package publish

import (
	"errors"
	"fmt"
)

var (
	ErrInitFailed      = errors.New("init_failed")
	ErrTransportFailed = errors.New("transport_failed")
	ErrFinalizeFailed  = errors.New("finalize_failed")
	ErrNotifyFailed    = errors.New("notify_failed")
)

// Error is a failed publish. Saved is true when the video was finalized before the failure,
// in which case VideoLink points at it.
type Error struct {
	Stage     Stage
	Saved     bool
	VideoLink string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.kind(), e.Err)
}

// Unwrap exposes both the stage sentinel and the cause.
func (e *Error) Unwrap() []error {
	return []error{e.kind(), e.Err}
}

func (e *Error) kind() error {
	switch e.Stage {
	case StageStarting:
		return ErrInitFailed
	case StageUploading:
		return ErrTransportFailed
	case StageFinalizing:
		return ErrFinalizeFailed
	default:
		return ErrNotifyFailed
	}
}

// UserMessage is the text shown to the person who recorded.
func (e *Error) UserMessage() string {
	if e.Saved {
		return "Your recording is saved, but we couldn't attach it to your ticket. Link: " + e.VideoLink
	}
	return "Upload failed. Please try again."
}
