package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// submitTimeout bounds the prompt POST; historyTimeout bounds each
	// individual history poll, not the overall wait.
	submitTimeout  = 10 * time.Second
	historyTimeout = 5 * time.Second
)

// FileRef is one produced media descriptor inside a history manifest.
type FileRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder,omitempty"`
	Type      string `json:"type,omitempty"`
}

// NodeOutput lists the media one graph node produced.
type NodeOutput struct {
	Images []FileRef `json:"images,omitempty"`
	Videos []FileRef `json:"videos,omitempty"`
}

// Manifest maps producing node id to that node's outputs.
type Manifest map[string]NodeOutput

// Client speaks the engine's prompt/history protocol. Await's poll
// cadence and overall budget come from the constructor so tests can
// shrink them.
type Client struct {
	baseURL string
	client  *http.Client
	poll    time.Duration
	timeout time.Duration
}

func NewClient(baseURL string, poll, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 0},
		poll:    poll,
		timeout: timeout,
	}
}

// SubmitPrompt queues graph for execution and returns the engine's
// prompt id.
func (c *Client) SubmitPrompt(ctx context.Context, graph any) (string, error) {
	body, err := json.Marshal(map[string]any{"prompt": graph})
	if err != nil {
		return "", transportError{op: "encode prompt", err: err}
	}
	rctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(rctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", transportError{op: "submit prompt", err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportError{op: "submit prompt", err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", transportError{op: "submit prompt", err: fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))}
	}
	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", transportError{op: "decode prompt response", err: err}
	}
	if out.PromptID == "" {
		return "", transportError{op: "submit prompt", err: errors.New("response missing prompt_id")}
	}
	return out.PromptID, nil
}

// Await polls history until promptID appears with a non-empty outputs
// mapping or the completion budget elapses. An entry whose outputs are
// still empty keeps polling; the engine records prompts before they
// finish.
func (c *Client) Await(ctx context.Context, promptID string) (Manifest, error) {
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		m, found, err := c.history(ctx, promptID)
		if err != nil {
			return nil, err
		}
		if found && len(m) > 0 {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, jobTimeoutError{promptID: promptID, budget: c.timeout}
		case <-ticker.C:
		}
	}
}

// history fetches the record for promptID. found is false while the
// engine has no entry for it yet.
func (c *Client) history(ctx context.Context, promptID string) (m Manifest, found bool, err error) {
	rctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(rctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, false, transportError{op: "poll history", err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, transportError{op: "poll history", err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, transportError{op: "poll history", err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	var record map[string]struct {
		Outputs Manifest `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, false, transportError{op: "decode history", err: err}
	}
	entry, ok := record[promptID]
	if !ok {
		return nil, false, nil
	}
	return entry.Outputs, true, nil
}
