package capture

import (
	"context"
	"errors"
)

var (
	// ErrEmptyTicket is returned when recording is attempted without a ticket name.
	ErrEmptyTicket = errors.New("ticket name is required")
	// ErrPermissionDenied wraps refused media access or a missing surface selection.
	ErrPermissionDenied = errors.New("media permission denied")
	// ErrUserCancelled is returned when the pre-recording countdown is cancelled.
	ErrUserCancelled = errors.New("countdown cancelled")
	// ErrSessionActive is returned when a session is already running on the controller.
	ErrSessionActive = errors.New("recording session already active")
)

// TrackKind is the media type of a track.
type TrackKind string

const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

// Track is one captured media source.
type Track interface {
	Kind() TrackKind
	Label() string
	// Stop releases the underlying device. It must be safe to call more than once.
	Stop()
	// Ended is closed when the source stops on its own, e.g. the OS "Stop sharing" control.
	Ended() <-chan struct{}
}

// Stream is an ordered set of tracks.
type Stream struct {
	tracks []Track
}

// Combine builds a stream from tracks, omitting nil ones.
func Combine(tracks ...Track) *Stream {
	s := &Stream{}
	for _, t := range tracks {
		if t != nil {
			s.tracks = append(s.tracks, t)
		}
	}
	return s
}

// Tracks returns the stream's tracks in order.
func (s *Stream) Tracks() []Track {
	if s == nil {
		return nil
	}
	return append([]Track(nil), s.tracks...)
}

// VideoTrack returns the first video track, or nil.
func (s *Stream) VideoTrack() Track { return s.first(KindVideo) }

// AudioTrack returns the first audio track, or nil.
func (s *Stream) AudioTrack() Track { return s.first(KindAudio) }

// Stop stops every track.
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.tracks {
		t.Stop()
	}
}

func (s *Stream) first(kind TrackKind) Track {
	if s == nil {
		return nil
	}
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// MediaDevices grants access to capture sources. The two grants are independent.
type MediaDevices interface {
	// GetDisplayMedia returns a screen or window video track plus optional system audio.
	GetDisplayMedia(ctx context.Context) (*Stream, error)
	// GetUserMedia returns a microphone audio track.
	GetUserMedia(ctx context.Context) (*Stream, error)
}

// Recorder encodes a stream into binary fragments.
type Recorder interface {
	// Start begins encoding; onData receives fragments in order.
	Start(onData func([]byte)) error
	// Stop ends encoding and returns after the last fragment has been delivered.
	Stop() error
}

// RecorderFactory binds a new recorder to a stream.
type RecorderFactory func(stream *Stream) (Recorder, error)
