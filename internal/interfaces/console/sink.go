package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"tickerhub/internal/application/port"
)

// Sink renders the monitor on a terminal: one live line rewritten in place
// plus timestamped snapshot lines.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewSink() port.Sink { return NewWriterSink(os.Stdout) }

func NewWriterSink(w io.Writer) *Sink { return &Sink{out: w} }

// WriteLive returns the cursor to column 0 and clears the line first.
func (s *Sink) WriteLive(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.out, "\r\033[2K"+line) // no newline
	return err
}

// WriteSnapshot leaves an empty line after the snapshot; the next change redraws the live line there.
func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "\n%s %s\n\n", ts.Format("2006-01-02 15:04:05"), line)
	return err
}

func (s *Sink) NewLine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.out, "\n")
	return err
}
