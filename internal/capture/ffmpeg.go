package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultFFmpeg    = "ffmpeg"
	defaultFrameRate = 30
	readBufferSize   = 256 * 1024
	stopGrace        = 10 * time.Second
)

// InputTrack is a track backed by an ffmpeg input (-f <format> -i <source>).
type InputTrack struct {
	kind  TrackKind
	label string
	args  []string

	endOnce sync.Once
	ended   chan struct{}
	stopped atomic.Bool
}

// NewInputTrack creates a track from ffmpeg input arguments.
func NewInputTrack(kind TrackKind, label string, args ...string) *InputTrack {
	return &InputTrack{kind: kind, label: label, args: args, ended: make(chan struct{})}
}

func (t *InputTrack) Kind() TrackKind        { return t.kind }
func (t *InputTrack) Label() string          { return t.label }
func (t *InputTrack) Ended() <-chan struct{} { return t.ended }
func (t *InputTrack) InputArgs() []string    { return append([]string(nil), t.args...) }

// Stop marks the track released.
func (t *InputTrack) Stop() { t.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (t *InputTrack) Stopped() bool { return t.stopped.Load() }

// End signals that the source went away on its own.
func (t *InputTrack) End() { t.endOnce.Do(func() { close(t.ended) }) }

// FFmpegDevices exposes an X11 display and PulseAudio sources as capture devices.
type FFmpegDevices struct {
	Binary      string
	Display     string // x11grab input, e.g. ":0.0"
	FrameRate   int
	Microphone  string // pulse source name
	SystemAudio string // pulse monitor source; empty disables system audio

	LookPath func(string) (string, error)
}

func (d *FFmpegDevices) binary() string {
	if d.Binary == "" {
		return defaultFFmpeg
	}
	return d.Binary
}

func (d *FFmpegDevices) available() error {
	lookPath := d.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(d.binary()); err != nil {
		return fmt.Errorf("ffmpeg not available: %w", err)
	}
	return nil
}

// GetDisplayMedia returns the display video track and, when configured, system audio.
func (d *FFmpegDevices) GetDisplayMedia(_ context.Context) (*Stream, error) {
	if err := d.available(); err != nil {
		return nil, err
	}
	if d.Display == "" {
		return nil, errors.New("no display selected")
	}
	rate := d.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}
	video := NewInputTrack(KindVideo, "display "+d.Display, "-f", "x11grab", "-framerate", strconv.Itoa(rate), "-i", d.Display)
	if d.SystemAudio == "" {
		return Combine(video), nil
	}
	audio := NewInputTrack(KindAudio, "system "+d.SystemAudio, "-f", "pulse", "-i", d.SystemAudio)
	return Combine(video, audio), nil
}

// GetUserMedia returns the microphone track.
func (d *FFmpegDevices) GetUserMedia(_ context.Context) (*Stream, error) {
	if err := d.available(); err != nil {
		return nil, err
	}
	if d.Microphone == "" {
		return nil, errors.New("no microphone selected")
	}
	return Combine(NewInputTrack(KindAudio, "microphone "+d.Microphone, "-f", "pulse", "-i", d.Microphone)), nil
}

type inputArgser interface {
	InputArgs() []string
}

// BuildFFmpegArgs returns arguments that mux the stream's inputs into VP9/Opus WebM on stdout.
// Multiple audio tracks are mixed into one.
func BuildFFmpegArgs(stream *Stream) ([]string, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	var video []int
	var audio []int
	for i, t := range stream.Tracks() {
		in, ok := t.(inputArgser)
		if !ok {
			return nil, fmt.Errorf("track %q is not an ffmpeg input", t.Label())
		}
		args = append(args, in.InputArgs()...)
		if t.Kind() == KindVideo {
			video = append(video, i)
		} else {
			audio = append(audio, i)
		}
	}
	if len(video) == 0 {
		return nil, errors.New("stream has no video track")
	}
	args = append(args, "-map", fmt.Sprintf("%d:v", video[0]))
	switch len(audio) {
	case 0:
	case 1:
		args = append(args, "-map", fmt.Sprintf("%d:a", audio[0]))
	default:
		filter := ""
		for _, i := range audio {
			filter += fmt.Sprintf("[%d:a]", i)
		}
		filter += fmt.Sprintf("amix=inputs=%d:duration=longest[aout]", len(audio))
		args = append(args, "-filter_complex", filter, "-map", "[aout]")
	}
	args = append(args,
		"-c:v", "libvpx-vp9", "-deadline", "realtime", "-cpu-used", "8", "-b:v", "2M",
		"-c:a", "libopus",
		"-f", "webm", "pipe:1",
	)
	return args, nil
}

// FFmpegRecorder records a stream with one ffmpeg process.
type FFmpegRecorder struct {
	binary string
	stream *Stream
	logger *zap.Logger

	cmd         *exec.Cmd
	stdin       io.WriteCloser
	done        chan struct{}
	waitErr     error
	exitedEarly bool
	delivered   int64
	stopping    atomic.Bool
}

// NewFFmpegRecorderFactory returns a RecorderFactory spawning binary (ffmpeg when empty).
func NewFFmpegRecorderFactory(binary string, logger *zap.Logger) RecorderFactory {
	if binary == "" {
		binary = defaultFFmpeg
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(stream *Stream) (Recorder, error) {
		return &FFmpegRecorder{binary: binary, stream: stream, logger: logger, done: make(chan struct{})}, nil
	}
}

// Start spawns ffmpeg and forwards stdout fragments to onData.
// If ffmpeg exits before Stop, the stream's input tracks are ended.
func (r *FFmpegRecorder) Start(onData func([]byte)) error {
	args, err := BuildFFmpegArgs(r.stream)
	if err != nil {
		return err
	}
	cmd := exec.Command(r.binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	r.cmd, r.stdin = cmd, stdin
	r.logger.Info("ffmpeg recorder started", zap.Int("pid", cmd.Process.Pid))

	go func() {
		defer close(r.done)
		buf := make([]byte, readBufferSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				r.delivered += int64(n)
				onData(buf[:n])
			}
			if err != nil {
				break
			}
		}
		r.waitErr = cmd.Wait()
		if !r.stopping.Load() {
			r.exitedEarly = true
			r.logger.Warn("ffmpeg exited before stop", zap.Error(r.waitErr))
			for _, t := range r.stream.Tracks() {
				if it, ok := t.(*InputTrack); ok {
					it.End()
				}
			}
		}
	}()
	return nil
}

// Stop asks ffmpeg to finish the file and waits for the last fragment.
// An early exit that already produced output is not an error.
func (r *FFmpegRecorder) Stop() error {
	if r.cmd == nil {
		return nil
	}
	r.stopping.Store(true)
	_, _ = io.WriteString(r.stdin, "q")
	_ = r.stdin.Close()
	select {
	case <-r.done:
	case <-time.After(stopGrace):
		r.logger.Warn("ffmpeg did not exit, killing", zap.Int("pid", r.cmd.Process.Pid))
		_ = r.cmd.Process.Kill()
		<-r.done
	}
	if r.waitErr != nil && !(r.exitedEarly && r.delivered > 0) {
		return fmt.Errorf("ffmpeg: %w", r.waitErr)
	}
	return nil
}
