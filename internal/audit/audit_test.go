package audit

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func verifyChain(t *testing.T, path string) int {
	t.Helper()
	data, _ := os.ReadFile(path)
	lines := splitLines(data)
	prevHash := ""
	count := 0
	for i, ln := range lines {
		if len(ln) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(ln, &entry); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		recordedHash := entry.EntryHash
		entry.EntryHash = ""
		raw, _ := json.Marshal(entry)
		h := sha256.Sum256(append([]byte(prevHash), raw...))
		if recordedHash != fmt.Sprintf("%x", h) {
			t.Fatalf("line %d: hash chain broken", i)
		}
		prevHash = recordedHash
		count++
	}
	return count
}

func TestTrailFileCreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "trail.log")

	tr, err := NewTrail(path)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("dir perm = %o, want 0700", perm)
	}

	if err := tr.Log(Entry{SessionID: "s1", EventType: EventSessionOpen}); err != nil {
		t.Fatal(err)
	}

	info, err = os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file perm = %o, want 0600", perm)
	}
}

func TestTrailHashChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.log")
	tr, err := NewTrail(path)
	if err != nil {
		t.Fatal(err)
	}

	entries := []Entry{
		{SessionID: "s1", EventType: EventSessionOpen, User: "alice(alice)", Timestamp: time.Now().UTC()},
		{SessionID: "s1", EventType: EventCommand, Input: "ls -la", Risk: "normal", Timestamp: time.Now().UTC()},
		{SessionID: "s1", EventType: EventBlocked, Input: "rm -rf /", Risk: "reject", Timestamp: time.Now().UTC()},
		{SessionID: "s1", EventType: EventSessionClose, Reason: "client disconnected", Timestamp: time.Now().UTC()},
	}
	for _, e := range entries {
		if err := tr.Log(e); err != nil {
			t.Fatal(err)
		}
	}
	tr.Close()

	if got := verifyChain(t, path); got != len(entries) {
		t.Errorf("entries = %d, want %d", got, len(entries))
	}
}

func TestTrailChainContinuityAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.log")

	tr1, _ := NewTrail(path)
	tr1.Log(Entry{SessionID: "s1", EventType: EventSessionOpen, Timestamp: time.Now().UTC()})
	tr1.Log(Entry{SessionID: "s1", EventType: EventCommand, Input: "whoami", Timestamp: time.Now().UTC()})
	tr1.Close()

	tr2, _ := NewTrail(path)
	tr2.Log(Entry{SessionID: "s2", EventType: EventSessionOpen, Timestamp: time.Now().UTC()})
	tr2.Close()

	if got := verifyChain(t, path); got != 3 {
		t.Fatalf("entries = %d, want 3", got)
	}
}

func TestTrailConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.log")
	tr, err := NewTrail(path)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	var wg sync.WaitGroup
	n := 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			tr.Log(Entry{
				SessionID: fmt.Sprintf("s%d", i),
				EventType: EventCommand,
				Input:     fmt.Sprintf("cmd%d", i),
			})
		}(i)
	}
	wg.Wait()

	if got := verifyChain(t, path); got != n {
		t.Errorf("entries = %d, want %d", got, n)
	}
}
