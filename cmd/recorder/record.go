package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mediasimplified/recorder/internal/capture"
	"github.com/mediasimplified/recorder/internal/publish"
)

func runRecord(cmd *cobra.Command, opts recordOptions, logger *zap.Logger) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	data, err := loadRecording(ctx, cmd, opts, logger)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	fmt.Fprintf(out, "Uploading %s…\n", humanize.Bytes(uint64(len(data))))

	bar := newUploadBar(out, int64(len(data)))
	publisher := publish.NewPublisher(
		publish.NewAPIClient(opts.server, nil),
		publish.NewTusTransport(nil, logger),
		publish.WithProgress(bar.Set),
		publish.WithStageHook(func(s publish.Stage) { logger.Debug("publish stage", zap.String("stage", string(s))) }),
		publish.WithPublishLogger(logger),
	)
	res, err := publisher.Publish(ctx, publish.Input{
		Data:           data,
		TicketName:     opts.ticket,
		ClientName:     opts.client,
		ContactID:      opts.contactID,
		ConversationID: opts.conversationID,
		RefererHost:    opts.refererHost,
	})
	bar.Finish()

	var perr *publish.Error
	if errors.As(err, &perr) {
		fmt.Fprintln(out, perr.UserMessage())
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Thanks! Your recording was attached to the ticket: %s\n", res.VideoLink)
	return nil
}

func loadRecording(ctx context.Context, cmd *cobra.Command, opts recordOptions, logger *zap.Logger) ([]byte, error) {
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, fmt.Errorf("read recording: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%s is empty", opts.file)
		}
		return data, nil
	}
	return captureRecording(ctx, cmd, opts, logger)
}

func captureRecording(ctx context.Context, cmd *cobra.Command, opts recordOptions, logger *zap.Logger) ([]byte, error) {
	out := cmd.OutOrStdout()
	status := newStatusLine(out)

	devices := &capture.FFmpegDevices{
		Display:     opts.display,
		Microphone:  opts.microphone,
		SystemAudio: opts.systemAudio,
	}
	controller := capture.NewController(devices, capture.NewFFmpegRecorderFactory("", logger),
		capture.WithCountdownHook(func(n int) { status.Printf("Recording starts in %d… (Ctrl+C to cancel)", n) }),
		capture.WithElapsedHook(func(d time.Duration) { status.Printf("● Recording %s (press Enter to finish)", formatElapsed(d)) }),
		capture.WithLogger(logger),
	)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigs:
				if !controller.CancelCountdown() {
					controller.Finish()
				}
			}
		}
	}()
	go waitForEnter(cmd.InOrStdin(), controller.Finish)

	rec, err := controller.Begin(ctx, opts.ticket, opts.client)
	status.Done()
	switch {
	case errors.Is(err, capture.ErrUserCancelled):
		fmt.Fprintln(out, "Recording cancelled.")
		return nil, nil
	case errors.Is(err, capture.ErrPermissionDenied):
		fmt.Fprintln(out, "Permission denied or cancelled.")
		return nil, err
	case err != nil:
		return nil, err
	}
	if len(rec.Data) == 0 {
		return nil, errors.New("recording produced no data")
	}
	fmt.Fprintf(out, "Recorded %s (%s).\n", formatElapsed(rec.Duration), humanize.Bytes(uint64(rec.Size())))
	return rec.Data, nil
}

func waitForEnter(in io.Reader, finish func() bool) {
	r := bufio.NewReader(in)
	for {
		if _, err := r.ReadString('\n'); err != nil {
			return
		}
		finish()
	}
}
