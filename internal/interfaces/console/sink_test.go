package console

import (
	"bytes"
	"testing"
	"time"
)

func TestSinkOutput(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)

	if err := s.WriteLive("[TICKERHUB] AAPL 189.50"); err != nil {
		t.Fatalf("WriteLive: %v", err)
	}
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if err := s.WriteSnapshot(ts, "snap"); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := s.NewLine(); err != nil {
		t.Fatalf("NewLine: %v", err)
	}

	want := "\r\033[2K[TICKERHUB] AAPL 189.50" + "\n2024-03-01 12:30:00 snap\n\n" + "\n"
	if got := buf.String(); got != want {
		t.Fatalf("output = %q\nwant %q", got, want)
	}
}
