package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tinkerbelle-io/tb-audit/internal/backend"
)

// castLines parses a cast file into its header and event rows.
func castLines(t *testing.T, path string) (castHeader, []string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 {
		t.Fatal("empty cast file")
	}

	var header castHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("invalid header %q: %v", lines[0], err)
	}

	var rows []string
	for _, line := range lines[1:] {
		var event []any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("invalid event %q: %v", line, err)
		}
		if len(event) != 3 || event[1] != "o" {
			t.Fatalf("malformed event: %v", event)
		}
		rows = append(rows, event[2].(string))
	}
	return header, rows
}

func TestWriterHeader(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w := NewWriter(&buf, 100, 30, start)
	if err := w.WriteHeader(); err != nil {
		t.Fatal(err)
	}

	var h castHeader
	if err := json.Unmarshal(buf.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if h.Version != 2 || h.Width != 100 || h.Height != 30 || h.Timestamp != start.Unix() {
		t.Errorf("header = %+v", h)
	}
}

func TestPrepareIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(backend.NewFake(), "s1", dir)

	h.WriteInput("ls")
	h.WriteInput("pwd")
	if err := h.prepare(); err != nil {
		t.Fatal(err)
	}

	header, rows := castLines(t, h.Path())
	if header.Version != 2 {
		t.Errorf("header version = %d", header.Version)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (duplicate header or truncation?)", len(rows))
	}
}

func TestInputRowFormat(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(backend.NewFake(), "s1", dir)

	h.WriteInput("ls -la")

	_, rows := castLines(t, h.Path())
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	row := rows[0]
	if !strings.Contains(row, "]#: ls -la") {
		t.Errorf("input row = %q", row)
	}
	if !strings.HasPrefix(row, "[") {
		t.Errorf("input row missing timestamp prefix: %q", row)
	}
	if !strings.HasSuffix(row, " \r\n") {
		t.Errorf("input row missing trailing-space framing: %q", row)
	}
}

func TestOutputRowWrapsAndFrames(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(backend.NewFake(), "s1", dir)

	h.WriteOutput("file1\nfile2")

	_, rows := castLines(t, h.Path())
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	row := rows[0]
	// Newlines inside the output collapse during wrapping.
	if !strings.Contains(row, "file1 file2") {
		t.Errorf("output row = %q, want wrapped 'file1 file2'", row)
	}
	if !strings.HasPrefix(row, "\r\n ") || !strings.HasSuffix(row, " \r\n") {
		t.Errorf("output row not framed with padding: %q", row)
	}
}

func TestRowsAppendInOrder(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(backend.NewFake(), "s1", dir)

	h.WriteInput("first")
	h.WriteOutput("one")
	h.WriteInput("second")
	h.WriteOutput("two")

	_, rows := castLines(t, h.Path())
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	for i, want := range []string{"first", "one", "second", "two"} {
		if !strings.Contains(rows[i], want) {
			t.Errorf("row %d = %q, want to contain %q", i, rows[i], want)
		}
	}
}

func TestUploadClosesAndNotifiesBackend(t *testing.T) {
	dir := t.TempDir()
	fake := backend.NewFake()
	h := NewHandler(fake, "s1", dir)

	h.WriteInput("ls")
	if err := h.Upload(context.Background()); err != nil {
		t.Fatal(err)
	}

	uploads := fake.ReplayUploads()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploads))
	}
	if !strings.HasSuffix(uploads[0], "s1.cast") {
		t.Errorf("uploaded path = %q", uploads[0])
	}

	// Second upload is a no-op.
	if err := h.Upload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(fake.ReplayUploads()); got != 1 {
		t.Errorf("uploads after repeat = %d, want 1", got)
	}
}

func TestUploadFailureIsTypedAndNonFatal(t *testing.T) {
	dir := t.TempDir()
	fake := backend.NewFake()
	fake.FailReplay = true
	h := NewHandler(fake, "s1", dir)

	h.WriteInput("ls")
	err := h.Upload(context.Background())
	var repErr *backend.ReplayUploadError
	if !errors.As(err, &repErr) {
		t.Fatalf("err = %v, want *ReplayUploadError", err)
	}
}

func TestReopenAppendsWithoutNewHeader(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(backend.NewFake(), "s1", dir)

	h.WriteInput("before")
	// Simulate a closed handle between writes.
	h.file.Close()
	h.file = nil
	h.writer = nil

	h.WriteInput("after")

	data, err := os.ReadFile(h.Path())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), `"version":2`); got != 1 {
		t.Errorf("header count = %d, want 1", got)
	}
	_, rows := castLines(t, h.Path())
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
}

func TestWrap(t *testing.T) {
	cases := []struct {
		in    string
		width int
		want  string
	}{
		{"", 10, ""},
		{"short", 10, "short"},
		{"aaa bbb ccc", 7, "aaa bbb\nccc"},
		{"one\ntwo three", 20, "one two three"},
		{"word", 2, "word"}, // single long word is never split
	}
	for _, c := range cases {
		if got := wrap(c.in, c.width); got != c.want {
			t.Errorf("wrap(%q, %d) = %q, want %q", c.in, c.width, got, c.want)
		}
	}
}
