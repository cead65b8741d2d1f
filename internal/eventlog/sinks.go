package eventlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/patchrun/patchrun/internal/report"
)

type ConsoleSink struct {
	out io.Writer

	after int
	head  int
	tail  int
}

func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

// LimitOutput shortens long messages on the console. Display-only: the file
// sink keeps the full text.
func (s *ConsoleSink) LimitOutput(after, head, tail int) {
	s.after = after
	s.head = head
	s.tail = tail
}

var (
	stepColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	sectionColor = color.New(color.Bold)
)

func (s *ConsoleSink) Emit(e Event) {
	prefix := ""
	if e.Host != "" {
		prefix = fmt.Sprintf("[%s] ", e.Host)
	}

	line := prefix + report.Truncate(e.Message, s.after, s.head, s.tail)
	switch e.Level {
	case LevelStep:
		stepColor.Fprintf(s.out, "==> %s\n", line)
	case LevelSuccess:
		successColor.Fprintf(s.out, "OK  %s\n", line)
	case LevelWarn:
		warnColor.Fprintf(s.out, "WRN %s\n", line)
	case LevelError:
		errorColor.Fprintf(s.out, "ERR %s\n", line)
	default:
		fmt.Fprintf(s.out, "    %s\n", line)
	}
}

func (s *ConsoleSink) Section(host string) {
	sectionColor.Fprintf(s.out, "\n==== %s ====\n", host)
}

// FileSink appends every event, untruncated, to the run log file.
type FileSink struct {
	f    *os.File
	path string
}

// NewFileSink creates a timestamped run log under dir.
func NewFileSink(dir string, start time.Time) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("run-%s.log", start.Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	return &FileSink{f: f, path: path}, nil
}

func (s *FileSink) Emit(e Event) {
	host := e.Host
	if host == "" {
		host = "-"
	}
	fmt.Fprintf(s.f, "%s %-7s %s %s\n", e.Time.Format(time.RFC3339), e.Level, host, e.Message)
}

func (s *FileSink) Section(host string) {
	fmt.Fprintf(s.f, "\n==== %s ====\n", host)
}

func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Close() error {
	return s.f.Close()
}
