package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// uploadBar renders upload progress as a bar on terminals and a summary line otherwise.
type uploadBar struct {
	mu    sync.Mutex
	out   io.Writer
	bar   *progressbar.ProgressBar
	sent  int64
	total int64
}

func newUploadBar(out io.Writer, total int64) *uploadBar {
	b := &uploadBar{out: out, total: total}
	if isTerminal(out) {
		b.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("Uploading"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
		)
	}
	return b
}

// Set records bytes acknowledged by the upload endpoint.
func (b *uploadBar) Set(sent, total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent, b.total = sent, total
	if b.bar != nil {
		if b.bar.GetMax64() != total {
			b.bar.ChangeMax64(total)
		}
		_ = b.bar.Set64(sent)
	}
}

func (b *uploadBar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		if b.sent >= b.total {
			_ = b.bar.Finish()
		} else {
			_ = b.bar.Exit()
			fmt.Fprintln(b.out)
		}
		return
	}
	fmt.Fprintf(b.out, "Uploaded %s of %s\n", humanize.Bytes(uint64(b.sent)), humanize.Bytes(uint64(b.total)))
}

// statusLine rewrites a single line on terminals and prints one line per update otherwise.
type statusLine struct {
	mu   sync.Mutex
	out  io.Writer
	tty  bool
	last string
}

func newStatusLine(out io.Writer) *statusLine {
	return &statusLine{out: out, tty: isTerminal(out)}
}

func (s *statusLine) Printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := fmt.Sprintf(format, args...)
	if line == s.last {
		return
	}
	s.last = line
	if s.tty {
		fmt.Fprintf(s.out, "\r\033[K%s", line)
		return
	}
	fmt.Fprintln(s.out, line)
}

// Done ends the current line.
func (s *statusLine) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tty && s.last != "" {
		fmt.Fprintln(s.out)
	}
	s.last = ""
}

// formatElapsed renders a duration as MM:SS.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
