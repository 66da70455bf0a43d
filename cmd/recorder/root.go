package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mediasimplified/recorder/config"
)

type recordOptions struct {
	ticket         string
	client         string
	contactID      string
	conversationID string
	refererHost    string
	server         string
	file           string
	display        string
	microphone     string
	systemAudio    string
	verbose        bool
}

func newRootCommand() *cobra.Command {
	var opts recordOptions

	rootCmd := &cobra.Command{
		Use:           "recorder",
		Short:         "Record the screen and attach it to a support ticket",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.applyDefaults(cfg.Recorder)
			if strings.TrimSpace(opts.ticket) == "" {
				return fmt.Errorf("please describe the issue with --ticket")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(opts.verbose)
			defer logger.Sync()
			return runRecord(cmd, opts, logger)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.ticket, "ticket", "t", "", "Short description of the issue (required)")
	flags.StringVar(&opts.client, "client", "", "Name of the person recording")
	flags.StringVar(&opts.contactID, "contact-id", "", "CRM contact to update with the video link")
	flags.StringVar(&opts.conversationID, "conversation-id", "", "CRM conversation to add a note to")
	flags.StringVar(&opts.refererHost, "referer-host", "", "Host the recording was requested from, used for location routing")
	flags.StringVar(&opts.server, "server", "", "Recorder server base URL (default $RECORDER_SERVER_URL)")
	flags.StringVarP(&opts.file, "file", "f", "", "Publish an existing WebM file instead of recording")
	flags.StringVar(&opts.display, "display", "", "X11 display to capture (default $RECORDER_DISPLAY)")
	flags.StringVar(&opts.microphone, "microphone", "", "PulseAudio microphone source (default $RECORDER_MICROPHONE)")
	flags.StringVar(&opts.systemAudio, "system-audio", "", "PulseAudio monitor source for system audio (default $RECORDER_SYSTEM_AUDIO)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log diagnostics to stderr")

	return rootCmd
}

func (o *recordOptions) applyDefaults(cfg config.RecorderConfig) {
	if o.server == "" {
		o.server = cfg.ServerURL
	}
	if o.display == "" {
		o.display = cfg.Display
	}
	if o.microphone == "" {
		o.microphone = cfg.Microphone
	}
	if o.systemAudio == "" {
		o.systemAudio = cfg.SystemAudio
	}
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
