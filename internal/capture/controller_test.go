package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mediasimplified/recorder/internal/models"
)

type fakeTrack struct {
	kind    TrackKind
	label   string
	stops   atomic.Int32
	ended   chan struct{}
	endOnce sync.Once
}

func newFakeTrack(kind TrackKind, label string) *fakeTrack {
	return &fakeTrack{kind: kind, label: label, ended: make(chan struct{})}
}

func (t *fakeTrack) Kind() TrackKind        { return t.kind }
func (t *fakeTrack) Label() string          { return t.label }
func (t *fakeTrack) Stop()                  { t.stops.Add(1) }
func (t *fakeTrack) Ended() <-chan struct{} { return t.ended }
func (t *fakeTrack) end()                   { t.endOnce.Do(func() { close(t.ended) }) }

type fakeDevices struct {
	display    *fakeTrack
	sysAudio   *fakeTrack
	mic        *fakeTrack
	displayErr error
	micErr     error
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{
		display:  newFakeTrack(KindVideo, "screen"),
		sysAudio: newFakeTrack(KindAudio, "system"),
		mic:      newFakeTrack(KindAudio, "mic"),
	}
}

func (d *fakeDevices) GetDisplayMedia(context.Context) (*Stream, error) {
	if d.displayErr != nil {
		return nil, d.displayErr
	}
	if d.sysAudio == nil {
		return Combine(d.display), nil
	}
	return Combine(d.display, d.sysAudio), nil
}

func (d *fakeDevices) GetUserMedia(context.Context) (*Stream, error) {
	if d.micErr != nil {
		return nil, d.micErr
	}
	return Combine(d.mic), nil
}

func (d *fakeDevices) all() []*fakeTrack {
	var out []*fakeTrack
	for _, t := range []*fakeTrack{d.display, d.sysAudio, d.mic} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	stream  *Stream
	starts  int
	stops   int
	onData  func([]byte)
	started chan struct{}
	tail    []byte
}

func (r *fakeRecorder) factory(stream *Stream) (Recorder, error) {
	r.stream = stream
	return r, nil
}

func (r *fakeRecorder) Start(onData func([]byte)) error {
	r.mu.Lock()
	r.starts++
	r.onData = onData
	r.mu.Unlock()
	onData([]byte("head-"))
	onData(nil)
	if r.started != nil {
		close(r.started)
	}
	return nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if r.tail != nil {
		r.onData(r.tail)
	}
	return nil
}

func fastController(t *testing.T, d *fakeDevices, r *fakeRecorder, opts ...Option) *Controller {
	opts = append([]Option{WithCountdown(3, 5*time.Millisecond), WithLogger(zaptest.NewLogger(t))}, opts...)
	return NewController(d, r.factory, opts...)
}

func assertReleased(t *testing.T, d *fakeDevices) {
	t.Helper()
	for _, tr := range d.all() {
		if n := tr.stops.Load(); n != 1 {
			t.Fatalf("track %s stopped %d times, want 1", tr.label, n)
		}
	}
}

func TestBeginRejectsEmptyTicket(t *testing.T) {
	d := newFakeDevices()
	r := &fakeRecorder{}
	c := fastController(t, d, r)

	if _, err := c.Begin(context.Background(), "   ", "Jane"); !errors.Is(err, ErrEmptyTicket) {
		t.Fatalf("expected ErrEmptyTicket, got %v", err)
	}
	for _, tr := range d.all() {
		if tr.stops.Load() != 0 {
			t.Fatal("no media should be acquired for an empty ticket")
		}
	}
}

func TestBeginFinishProducesBlob(t *testing.T) {
	d := newFakeDevices()
	r := &fakeRecorder{started: make(chan struct{}), tail: []byte("tail")}
	var ticks []int
	c := fastController(t, d, r, WithCountdownHook(func(n int) { ticks = append(ticks, n) }))

	go func() {
		<-r.started
		if !c.Finish() {
			t.Error("finish should report a running recording")
		}
	}()

	rec, err := c.Begin(context.Background(), " Domain issues ", "Jane")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if string(rec.Data) != "head-tail" {
		t.Fatalf("unexpected blob %q", rec.Data)
	}
	if rec.TicketName != "Domain issues" || rec.ClientName != "Jane" || rec.MimeType != "video/webm" {
		t.Fatalf("unexpected recording %+v", rec)
	}
	if len(ticks) != 3 || ticks[0] != 3 || ticks[2] != 1 {
		t.Fatalf("unexpected countdown ticks %v", ticks)
	}
	if got := len(r.stream.Tracks()); got != 3 {
		t.Fatalf("expected combined stream of 3 tracks, got %d", got)
	}
	if r.starts != 1 || r.stops != 1 {
		t.Fatalf("recorder started %d stopped %d", r.starts, r.stops)
	}
	assertReleased(t, d)
	if c.State() != models.RecorderStateIdle {
		t.Fatalf("controller should be idle after session, got %s", c.State())
	}
}

func TestCancelCountdownReleasesWithoutRecording(t *testing.T) {
	d := newFakeDevices()
	r := &fakeRecorder{}
	var c *Controller
	c = fastController(t, d, r, WithCountdownHook(func(n int) {
		// one of three seconds has elapsed
		if n == 2 && !c.CancelCountdown() {
			t.Error("cancel should report a running countdown")
		}
	}))

	_, err := c.Begin(context.Background(), "ticket", "")
	if !errors.Is(err, ErrUserCancelled) {
		t.Fatalf("expected ErrUserCancelled, got %v", err)
	}
	if r.starts != 0 || r.stream != nil {
		t.Fatalf("recorder must never be started, starts=%d", r.starts)
	}
	assertReleased(t, d)
}

func TestSharingEndedAndFinishConverge(t *testing.T) {
	d := newFakeDevices()
	r := &fakeRecorder{started: make(chan struct{})}
	c := fastController(t, d, r)

	go func() {
		<-r.started
		d.display.end()
		c.Finish()
		c.Finish()
	}()

	rec, err := c.Begin(context.Background(), "ticket", "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if r.stops != 1 {
		t.Fatalf("stop handler ran %d times, want 1", r.stops)
	}
	if string(rec.Data) != "head-" {
		t.Fatalf("unexpected blob %q", rec.Data)
	}
	assertReleased(t, d)
}

func TestMicrophoneDeniedReleasesDisplay(t *testing.T) {
	d := newFakeDevices()
	d.micErr = errors.New("NotAllowedError")
	r := &fakeRecorder{}
	c := fastController(t, d, r)

	_, err := c.Begin(context.Background(), "ticket", "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if d.display.stops.Load() != 1 || d.sysAudio.stops.Load() != 1 {
		t.Fatal("display tracks must be released when microphone is denied")
	}
	if d.mic.stops.Load() != 0 {
		t.Fatal("microphone was never granted")
	}
	if r.starts != 0 {
		t.Fatal("recorder must not start")
	}
}

func TestDisplayDenied(t *testing.T) {
	d := newFakeDevices()
	d.displayErr = errors.New("no surface selected")
	c := fastController(t, d, &fakeRecorder{})

	if _, err := c.Begin(context.Background(), "ticket", ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestMissingSystemAudioDegrades(t *testing.T) {
	d := newFakeDevices()
	d.sysAudio = nil
	r := &fakeRecorder{started: make(chan struct{})}
	c := fastController(t, d, r)

	go func() {
		<-r.started
		c.Finish()
	}()
	if _, err := c.Begin(context.Background(), "ticket", ""); err != nil {
		t.Fatalf("begin: %v", err)
	}
	tracks := r.stream.Tracks()
	if len(tracks) != 2 || tracks[0].Kind() != KindVideo || tracks[1].Label() != "mic" {
		t.Fatalf("unexpected combined tracks %v", tracks)
	}
}

func TestSecondSessionRejectedWhileActive(t *testing.T) {
	d := newFakeDevices()
	r := &fakeRecorder{started: make(chan struct{})}
	c := fastController(t, d, r)

	done := make(chan error, 1)
	go func() {
		_, err := c.Begin(context.Background(), "first", "")
		done <- err
	}()
	<-r.started

	if _, err := c.Begin(context.Background(), "second", ""); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if c.State() != models.RecorderStateRecording {
		t.Fatalf("expected recording state, got %s", c.State())
	}
	c.Finish()
	if err := <-done; err != nil {
		t.Fatalf("first session: %v", err)
	}
}

func TestFinishAndCancelOutsideTheirStates(t *testing.T) {
	c := fastController(t, newFakeDevices(), &fakeRecorder{})
	if c.Finish() {
		t.Fatal("finish with no session must be a no-op")
	}
	if c.CancelCountdown() {
		t.Fatal("cancel with no session must be a no-op")
	}
}

func TestContextDoneStopsRecording(t *testing.T) {
	d := newFakeDevices()
	r := &fakeRecorder{started: make(chan struct{})}
	c := fastController(t, d, r)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-r.started
		cancel()
	}()
	if _, err := c.Begin(ctx, "ticket", ""); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if r.stops != 1 {
		t.Fatalf("expected recorder stopped once, got %d", r.stops)
	}
	assertReleased(t, d)
}
