// Package replay records one asciinema-cast transcript per session and
// uploads the finished artifact to the audit store.
package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Default terminal geometry for recorded sessions.
const (
	DefaultWidth  = 80
	DefaultHeight = 40
)

// castHeader is the first line of a cast v2 file.
type castHeader struct {
	Version   int   `json:"version"`
	Width     int   `json:"width"`
	Height    int   `json:"height"`
	Timestamp int64 `json:"timestamp"`
}

// Writer emits cast v2 rows: a JSON header line followed by timestamped
// output events. Timestamps are seconds elapsed since the session start,
// so a Writer reopened mid-session must be given the original start time.
type Writer struct {
	w      io.Writer
	width  int
	height int
	start  time.Time
}

// NewWriter wraps w. start anchors event timestamps.
func NewWriter(w io.Writer, width, height int, start time.Time) *Writer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Writer{w: w, width: width, height: height, start: start}
}

// Width returns the configured terminal width.
func (w *Writer) Width() int { return w.width }

// WriteHeader writes the cast header line. The caller is responsible for
// writing it exactly once per file.
func (w *Writer) WriteHeader() error {
	h := castHeader{
		Version:   2,
		Width:     w.width,
		Height:    w.height,
		Timestamp: w.start.Unix(),
	}
	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal cast header: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("write cast header: %w", err)
	}
	return nil
}

// WriteRow appends one output event stamped with the elapsed time.
func (w *Writer) WriteRow(data []byte) error {
	elapsed := time.Since(w.start).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	event := []any{elapsed, "o", string(data)}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal cast event: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("write cast event: %w", err)
	}
	return nil
}
