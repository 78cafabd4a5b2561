package replay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tinkerbelle-io/tb-audit/internal/backend"
)

// Handler owns one session's replay file: lazy creation, row writing, and
// the flush-close-upload sequence at session end.
//
// Row-append failures are logged and swallowed so a broken transcript never
// aborts an in-progress command. Upload failures are returned for the close
// sequence to log; they must not stop teardown.
type Handler struct {
	sessionID string
	dir       string
	backend   backend.Backend
	log       *slog.Logger

	start    time.Time
	file     *os.File
	writer   *Writer
	uploaded bool
}

// NewHandler binds a replay handler to one session. Files are created
// lazily under dir on the first write.
func NewHandler(b backend.Backend, sessionID, dir string) *Handler {
	return &Handler{
		sessionID: sessionID,
		dir:       dir,
		backend:   b,
		start:     time.Now(),
		log:       slog.Default().With("component", "replay", "session_id", sessionID),
	}
}

// Path returns the replay file location for this session.
func (h *Handler) Path() string {
	return filepath.Join(h.dir, h.sessionID+".cast")
}

// prepare makes the handler writable. Idempotent: the first call creates
// the file and writes the cast header; later calls are no-ops while the
// handle is open and reopen in append mode after a close. Reopened writers
// keep the original start time so event timestamps stay monotonic.
func (h *Handler) prepare() error {
	if h.file != nil && h.writer != nil {
		return nil
	}

	if err := os.MkdirAll(h.dir, 0700); err != nil {
		return fmt.Errorf("create replay dir %s: %w", h.dir, err)
	}

	path := h.Path()
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("open replay file %s: %w", path, err)
	}

	h.file = f
	h.writer = NewWriter(f, DefaultWidth, DefaultHeight, h.start)
	if fresh {
		if err := h.writer.WriteHeader(); err != nil {
			f.Close()
			h.file = nil
			h.writer = nil
			return err
		}
	}
	return nil
}

// WriteInput appends one input row: "[<local timestamp>]#: <text>".
func (h *Handler) WriteInput(text string) {
	if err := h.prepare(); err != nil {
		h.log.Error("replay not writable", "error", err)
		return
	}
	row := fmt.Sprintf("[%s]#: %s", time.Now().Format("2006-01-02 15:04:05"), text)
	h.writeRow(row)
}

// WriteOutput appends one output row, word-wrapped to the terminal width
// and framed with blank padding.
func (h *Handler) WriteOutput(text string) {
	if err := h.prepare(); err != nil {
		h.log.Error("replay not writable", "error", err)
		return
	}
	row := fmt.Sprintf("\r\n %s \r\n", wrap(text, h.writer.Width()))
	h.writeRow(row)
}

// writeRow normalizes line endings to the \r\n pairing the replay player
// expects, adds the trailing-space row framing, and appends the event.
func (h *Handler) writeRow(row string) {
	row = strings.ReplaceAll(row, "\n", "\r\n")
	row = strings.ReplaceAll(row, "\r\r\n", "\r\n")
	row += " \r\n"

	if err := h.writer.WriteRow([]byte(row)); err != nil {
		h.log.Error("failed to write replay row", "error", err)
	}
}

// Upload finalizes the artifact: flush and close the handle (best effort),
// then announce the file to the audit store. Called exactly once per
// session by the close sequence; repeated calls are no-ops.
func (h *Handler) Upload(ctx context.Context) error {
	if h.uploaded {
		return nil
	}
	h.uploaded = true

	if err := h.prepare(); err != nil {
		h.log.Error("replay not writable before upload", "error", err)
	}

	if h.file != nil {
		if err := h.file.Sync(); err != nil {
			h.log.Warn("failed to flush replay file", "error", err)
		}
		if err := h.file.Close(); err != nil {
			h.log.Warn("failed to close replay file", "error", err)
		}
		h.file = nil
		h.writer = nil
	}

	path, err := filepath.Abs(h.Path())
	if err != nil {
		path = h.Path()
	}
	return h.backend.UploadReplayFile(ctx, h.sessionID, path)
}

// wrap greedily word-wraps text to width columns. Like the transcript
// format it feeds, it collapses all runs of whitespace (including
// newlines) into single spaces first.
func wrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	lineLen := 0
	for i, word := range words {
		if i == 0 {
			b.WriteString(word)
			lineLen = len(word)
			continue
		}
		if lineLen+1+len(word) > width {
			b.WriteByte('\n')
			b.WriteString(word)
			lineLen = len(word)
		} else {
			b.WriteByte(' ')
			b.WriteString(word)
			lineLen += 1 + len(word)
		}
	}
	return b.String()
}
