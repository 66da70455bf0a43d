package capture

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediasimplified/recorder/internal/models"
)

const (
	defaultCountdown = 3
	defaultTick      = time.Second
)

// Stop reasons.
const (
	StopFinished     = "finished"
	StopSharingEnded = "sharing_ended"
	StopContextDone  = "context_done"
)

// Option configures a Controller.
type Option func(*Controller)

// WithCountdown sets the number of countdown ticks and the tick length.
func WithCountdown(ticks int, tick time.Duration) Option {
	return func(c *Controller) {
		c.countdown = ticks
		c.tick = tick
	}
}

// WithCountdownHook is called with the remaining seconds at every countdown tick.
func WithCountdownHook(fn func(remaining int)) Option {
	return func(c *Controller) { c.onCountdown = fn }
}

// WithElapsedHook is called once per tick while recording.
func WithElapsedHook(fn func(elapsed time.Duration)) Option {
	return func(c *Controller) { c.onElapsed = fn }
}

// WithLogger sets the controller logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// Controller acquires media, runs the countdown and records one session at a time.
type Controller struct {
	devices     MediaDevices
	newRecorder RecorderFactory
	countdown   int
	tick        time.Duration
	onCountdown func(int)
	onElapsed   func(time.Duration)
	logger      *zap.Logger

	mu     sync.Mutex
	active *session
}

// NewController creates a capture controller.
func NewController(devices MediaDevices, newRecorder RecorderFactory, opts ...Option) *Controller {
	c := &Controller{
		devices:     devices,
		newRecorder: newRecorder,
		countdown:   defaultCountdown,
		tick:        defaultTick,
		onCountdown: func(int) {},
		onElapsed:   func(time.Duration) {},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tick <= 0 {
		c.tick = defaultTick
	}
	return c
}

// State reports the state of the active session, or idle.
func (c *Controller) State() models.RecorderState {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return models.RecorderStateIdle
	}
	return s.current()
}

// CancelCountdown aborts a running countdown. It reports whether a countdown was cancelled.
func (c *Controller) CancelCountdown() bool {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	return s != nil && s.cancelCountdown()
}

// Finish requests the end of a running recording. It reports whether a recording was running.
func (c *Controller) Finish() bool {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil || s.current() != models.RecorderStateRecording {
		return false
	}
	s.requestStop(StopFinished)
	return true
}

// Begin captures display and microphone, counts down and records until Finish, the display
// track ending, or ctx being done. Every acquired track is stopped before Begin returns.
func (c *Controller) Begin(ctx context.Context, ticketName, clientName string) (*models.Recording, error) {
	ticketName = strings.TrimSpace(ticketName)
	if ticketName == "" {
		return nil, ErrEmptyTicket
	}
	s, err := c.open()
	if err != nil {
		return nil, err
	}
	defer c.close(s)
	defer s.release()

	log := c.logger.With(zap.String("session_id", s.id.String()), zap.String("ticket", ticketName))

	display, err := c.devices.GetDisplayMedia(ctx)
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("%w: display: %w", ErrPermissionDenied, err)
	}
	s.own(display)
	mic, err := c.devices.GetUserMedia(ctx)
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("%w: microphone: %w", ErrPermissionDenied, err)
	}
	s.own(mic)

	videoTrack := display.VideoTrack()
	combined := Combine(videoTrack, display.AudioTrack(), mic.AudioTrack())

	if err := s.transition(models.RecorderStateCountingDown); err != nil {
		return nil, err
	}
	if err := c.runCountdown(ctx, s); err != nil {
		s.abort()
		log.Info("countdown aborted", zap.Error(err))
		return nil, err
	}

	rec, err := c.newRecorder(combined)
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("create recorder: %w", err)
	}
	if err := s.startRecording(); err != nil {
		return nil, err
	}
	startedAt := time.Now()
	if err := rec.Start(s.appendChunk); err != nil {
		s.abort()
		return nil, fmt.Errorf("start recorder: %w", err)
	}
	log.Info("recording started", zap.Int("tracks", len(combined.Tracks())))

	var ended <-chan struct{}
	if videoTrack != nil {
		ended = videoTrack.Ended()
	}
	go func() {
		select {
		case <-ended:
			s.requestStop(StopSharingEnded)
		case <-ctx.Done():
			s.requestStop(StopContextDone)
		case <-s.stopCh:
		}
	}()
	ticking := c.runElapsed(s.stopCh, startedAt)

	<-s.stopCh
	<-ticking
	stopErr := rec.Stop()
	if err := s.transition(models.RecorderStateStopped); err != nil {
		return nil, err
	}
	log.Info("recording stopped", zap.String("reason", s.stopReason), zap.Duration("duration", time.Since(startedAt)))
	if stopErr != nil {
		return nil, fmt.Errorf("stop recorder: %w", stopErr)
	}

	return &models.Recording{
		SessionID:  s.id,
		TicketName: ticketName,
		ClientName: strings.TrimSpace(clientName),
		MimeType:   models.RecordingMimeType,
		Data:       s.blob(),
		Duration:   time.Since(startedAt),
		StartedAt:  startedAt,
	}, nil
}

func (c *Controller) open() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, ErrSessionActive
	}
	c.active = newSession()
	return c.active, nil
}

func (c *Controller) close(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s {
		c.active = nil
	}
}

func (c *Controller) runCountdown(ctx context.Context, s *session) error {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for remaining := c.countdown; remaining > 0; remaining-- {
		c.onCountdown(remaining)
		select {
		case <-s.cancelCh:
			return ErrUserCancelled
		default:
		}
		select {
		case <-s.cancelCh:
			return ErrUserCancelled
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (c *Controller) runElapsed(stop <-chan struct{}, startedAt time.Time) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(c.tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.onElapsed(time.Since(startedAt))
			}
		}
	}()
	return done
}

// session is the state of one Begin call.
type session struct {
	id uuid.UUID

	mu         sync.Mutex
	state      models.RecorderState
	chunks     [][]byte
	sources    []*Stream
	stopReason string

	cancelCh    chan struct{}
	cancelOnce  sync.Once
	stopCh      chan struct{}
	stopOnce    sync.Once
	releaseOnce sync.Once
}

func newSession() *session {
	return &session{
		id:       uuid.New(),
		state:    models.RecorderStateIdle,
		cancelCh: make(chan struct{}),
		stopCh:   make(chan struct{}),
	}
}

var transitions = map[models.RecorderState][]models.RecorderState{
	models.RecorderStateIdle:         {models.RecorderStateCountingDown, models.RecorderStateStopped},
	models.RecorderStateCountingDown: {models.RecorderStateRecording, models.RecorderStateStopped},
	models.RecorderStateRecording:    {models.RecorderStateStopped},
}

func (s *session) current() models.RecorderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) transition(to models.RecorderState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *session) transitionLocked(to models.RecorderState) error {
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid recorder transition %s -> %s", s.state, to)
}

// startRecording leaves the countdown unless a cancel already landed.
func (s *session) startRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.cancelCh:
		_ = s.transitionLocked(models.RecorderStateStopped)
		return ErrUserCancelled
	default:
	}
	return s.transitionLocked(models.RecorderStateRecording)
}

func (s *session) cancelCountdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.RecorderStateCountingDown {
		return false
	}
	s.cancelOnce.Do(func() { close(s.cancelCh) })
	return true
}

// requestStop consumes the single stop token; later triggers are ignored.
func (s *session) requestStop(reason string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopReason = reason
		s.mu.Unlock()
		close(s.stopCh)
	})
}

// abort moves a session that never finished recording to stopped.
func (s *session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.RecorderStateStopped {
		_ = s.transitionLocked(models.RecorderStateStopped)
	}
}

func (s *session) own(stream *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, stream)
}

func (s *session) release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		sources := s.sources
		s.mu.Unlock()
		for _, src := range sources {
			src.Stop()
		}
	})
}

func (s *session) appendChunk(b []byte) {
	if len(b) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, append([]byte(nil), b...))
}

func (s *session) blob() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Join(s.chunks, nil)
}
