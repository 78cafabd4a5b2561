package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client talks to the audit store over HTTP. Each call POSTs a JSON body
// and expects a status envelope back.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *slog.Logger
}

// statusEnvelope is the common response wrapper: ok plus an optional error
// string, with the created session echoed back on create.
type statusEnvelope struct {
	Ok   bool     `json:"ok"`
	Err  string   `json:"err,omitempty"`
	Data *Session `json:"data,omitempty"`
}

type finishRequest struct {
	ID      string `json:"id"`
	DateEnd int64  `json:"date_end"`
}

type replayRequest struct {
	SessionID      string `json:"session_id"`
	ReplayFilePath string `json:"replay_file_path"`
}

// NewClient creates an audit-store client for the given base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: slog.Default().With("component", "backend"),
	}
}

// CreateSession registers a new session and returns the backend's copy,
// including the assigned session id.
func (c *Client) CreateSession(ctx context.Context, s Session) (Session, error) {
	env, err := c.post(ctx, "/api/v1/sessions", s)
	if err != nil {
		return Session{}, &SessionCreateError{Reason: err.Error()}
	}
	if !env.Ok {
		return Session{}, &SessionCreateError{Reason: env.Err}
	}
	if env.Data == nil {
		return Session{}, &SessionCreateError{Reason: "backend returned no session data"}
	}
	return *env.Data, nil
}

// FinishSession stamps the session's end time.
func (c *Client) FinishSession(ctx context.Context, id string, end time.Time) error {
	env, err := c.post(ctx, "/api/v1/sessions/finish", finishRequest{
		ID:      id,
		DateEnd: end.Unix(),
	})
	if err != nil {
		return &SessionCloseError{SessionID: id, Reason: err.Error()}
	}
	if !env.Ok {
		return &SessionCloseError{SessionID: id, Reason: env.Err}
	}
	return nil
}

// UploadCommand delivers one audited command record.
func (c *Client) UploadCommand(ctx context.Context, rec CommandUpload) error {
	env, err := c.post(ctx, "/api/v1/commands", rec)
	if err != nil {
		return &CommandUploadError{SessionID: rec.SessionID, Reason: err.Error()}
	}
	if !env.Ok {
		return &CommandUploadError{SessionID: rec.SessionID, Reason: env.Err}
	}
	return nil
}

// UploadReplayFile announces a finalized replay artifact by path.
func (c *Client) UploadReplayFile(ctx context.Context, sessionID, path string) error {
	env, err := c.post(ctx, "/api/v1/replays", replayRequest{
		SessionID:      sessionID,
		ReplayFilePath: path,
	})
	if err != nil {
		return &ReplayUploadError{SessionID: sessionID, Path: path, Reason: err.Error()}
	}
	if !env.Ok {
		return &ReplayUploadError{SessionID: sessionID, Path: path, Reason: env.Err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*statusEnvelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var env statusEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &env, nil
}
