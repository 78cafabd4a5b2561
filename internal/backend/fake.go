package backend

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is an in-memory Backend for tests. It records every call and can be
// told to fail individual operations with a non-ok status.
type Fake struct {
	mu sync.Mutex

	nextID int

	Sessions  []Session
	Finished  []string
	Commands  []CommandUpload
	Replays   []string // uploaded replay file paths
	ReplaySID []string

	FailCreate  bool
	FailFinish  bool
	FailCommand bool
	FailReplay  bool
}

// NewFake returns an empty fake backend.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) CreateSession(ctx context.Context, s Session) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate {
		return Session{}, &SessionCreateError{Reason: "backend unavailable"}
	}
	f.nextID++
	s.ID = fmt.Sprintf("fake-session-%d", f.nextID)
	f.Sessions = append(f.Sessions, s)
	return s, nil
}

func (f *Fake) FinishSession(ctx context.Context, id string, end time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailFinish {
		return &SessionCloseError{SessionID: id, Reason: "backend unavailable"}
	}
	f.Finished = append(f.Finished, id)
	return nil
}

func (f *Fake) UploadCommand(ctx context.Context, rec CommandUpload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCommand {
		return &CommandUploadError{SessionID: rec.SessionID, Reason: "backend unavailable"}
	}
	f.Commands = append(f.Commands, rec)
	return nil
}

func (f *Fake) UploadReplayFile(ctx context.Context, sessionID, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailReplay {
		return &ReplayUploadError{SessionID: sessionID, Path: path, Reason: "backend unavailable"}
	}
	f.Replays = append(f.Replays, path)
	f.ReplaySID = append(f.ReplaySID, sessionID)
	return nil
}

// CreatedCount returns how many sessions were created.
func (f *Fake) CreatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sessions)
}

// CommandRecords returns a copy of the uploaded command records.
func (f *Fake) CommandRecords() []CommandUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CommandUpload, len(f.Commands))
	copy(out, f.Commands)
	return out
}

// FinishedSessions returns a copy of the finished session ids.
func (f *Fake) FinishedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Finished))
	copy(out, f.Finished)
	return out
}

// ReplayUploads returns a copy of the uploaded replay paths.
func (f *Fake) ReplayUploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Replays))
	copy(out, f.Replays)
	return out
}
