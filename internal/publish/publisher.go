package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mediasimplified/recorder/internal/models"
)

// Stage is a step of the publish workflow.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageStarting   Stage = "starting"
	StageUploading  Stage = "uploading"
	StageFinalizing Stage = "finalizing"
	StageNotifying  Stage = "notifying"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

var nextStage = map[Stage]Stage{
	StageIdle:       StageStarting,
	StageStarting:   StageUploading,
	StageUploading:  StageFinalizing,
	StageFinalizing: StageNotifying,
	StageNotifying:  StageDone,
}

// API is the server side of the workflow.
type API interface {
	StartUpload(ctx context.Context, req models.StartUploadRequest) (*models.UploadSession, error)
	FinalizeVideo(ctx context.Context, req models.FinalizeRequest) (*models.FinalizedVideo, error)
	PostTicket(ctx context.Context, req models.TicketUpdateRequest) error
}

// Transport moves the blob to the upload link.
type Transport interface {
	Upload(ctx context.Context, uploadLink string, data []byte, progress func(sent, total int64)) error
}

// Input is one recording to publish and the ticket it belongs to.
type Input struct {
	Data           []byte
	TicketName     string
	ClientName     string
	ContactID      string
	ConversationID string
	RefererHost    string
}

// Result is a published recording.
type Result struct {
	VideoLink string
	Video     models.FinalizedVideo
	Upload    models.UploadSession
}

// Publisher runs start → upload → finalize → notify strictly in order.
type Publisher struct {
	api        API
	transport  Transport
	now        func() time.Time
	loc        *time.Location
	onProgress func(sent, total int64)
	onStage    func(Stage)
	logger     *zap.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithClock sets the time source used for video names.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// WithProgress receives upload progress.
func WithProgress(fn func(sent, total int64)) PublisherOption {
	return func(p *Publisher) { p.onProgress = fn }
}

// WithStageHook is called on every stage change.
func WithStageHook(fn func(Stage)) PublisherOption {
	return func(p *Publisher) { p.onStage = fn }
}

// WithPublishLogger sets the logger.
func WithPublishLogger(logger *zap.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// NewPublisher creates a publisher.
func NewPublisher(api API, transport Transport, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		api:       api,
		transport: transport,
		now:       time.Now,
		loc:       Eastern,
		onStage:   func(Stage) {},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run tracks the stage of one Publish call.
type run struct {
	mu      sync.Mutex
	stage   Stage
	onStage func(Stage)
}

func (r *run) advance() Stage {
	r.mu.Lock()
	next, ok := nextStage[r.stage]
	if !ok {
		r.mu.Unlock()
		panic(fmt.Sprintf("publish: no stage after %s", r.stage))
	}
	r.stage = next
	r.mu.Unlock()
	r.onStage(next)
	return next
}

func (r *run) fail(err error, saved bool, link string) *Error {
	r.mu.Lock()
	stage := r.stage
	r.stage = StageFailed
	r.mu.Unlock()
	r.onStage(StageFailed)
	return &Error{Stage: stage, Saved: saved, VideoLink: link, Err: err}
}

// Publish uploads the recording and attaches its link to the ticket. The ticket is only
// contacted after the video is finalized; a ticket failure leaves the video saved.
func (p *Publisher) Publish(ctx context.Context, in Input) (*Result, error) {
	r := &run{stage: StageIdle, onStage: p.onStage}
	size := int64(len(in.Data))
	log := p.logger.With(zap.String("ticket", in.TicketName), zap.Int64("size", size))

	r.advance()
	sess, err := p.api.StartUpload(ctx, models.StartUploadRequest{Size: size, Name: ProvisionalName(p.now())})
	if err == nil && (sess == nil || sess.UploadLink == "") {
		err = errors.New("no upload link in response")
	}
	if err != nil {
		log.Error("start upload failed", zap.Error(err))
		return nil, r.fail(err, false, "")
	}

	r.advance()
	if err := p.transport.Upload(ctx, sess.UploadLink, in.Data, p.onProgress); err != nil {
		log.Error("transport failed", zap.Error(err), zap.String("video_uri", sess.VideoURI))
		return nil, r.fail(err, false, "")
	}

	r.advance()
	finalName := FinalName(in.ClientName, in.TicketName, p.now(), p.loc)
	video, err := p.api.FinalizeVideo(ctx, models.FinalizeRequest{VideoURI: sess.VideoURI, Name: finalName})
	if err == nil && video.PreferredLink() == "" {
		err = errors.New("no video link in response")
	}
	if err != nil {
		log.Error("finalize failed", zap.Error(err), zap.String("video_uri", sess.VideoURI))
		return nil, r.fail(err, false, "")
	}
	link := video.PreferredLink()

	r.advance()
	err = p.api.PostTicket(ctx, models.TicketUpdateRequest{
		ContactID:      in.ContactID,
		ConversationID: in.ConversationID,
		VideoLink:      link,
		TicketName:     in.TicketName,
		ClientName:     in.ClientName,
		RefererHost:    in.RefererHost,
	})
	if err != nil {
		log.Warn("ticket update failed, video saved", zap.Error(err), zap.String("video_link", link))
		return nil, r.fail(err, true, link)
	}

	r.advance()
	log.Info("recording published", zap.String("video_link", link), zap.String("name", finalName))
	return &Result{VideoLink: link, Video: *video, Upload: *sess}, nil
}
