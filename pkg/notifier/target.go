package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Target is the external confirmation entry point. Implementations may fail
// in any way; the Notifier absorbs every failure.
type Target interface {
	ReceiveConfirmation(ctx context.Context, tripID string, outcome bool) error
}

// Reverter is implemented by failures that carry raw revert data.
type Reverter interface {
	RevertData() []byte
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, tripID string, outcome bool) error

func (f TargetFunc) ReceiveConfirmation(ctx context.Context, tripID string, outcome bool) error {
	return f(ctx, tripID, outcome)
}

// RevertError is a rejected call with the raw bytes the target returned.
type RevertError struct {
	Status int
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("target reverted (status %d): %s", e.Status, e.Data)
	}
	return fmt.Sprintf("target reverted: %s", e.Data)
}

func (e *RevertError) RevertData() []byte {
	return e.Data
}

// maxRevertBytes caps how much of a response body is kept as revert data.
const maxRevertBytes = 64 << 10

// confirmation is the JSON body posted by HTTPTarget.
type confirmation struct {
	TripID  string `json:"trip_id"`
	Outcome bool   `json:"outcome"`
}

// HTTPTarget delivers confirmations as JSON POSTs.
type HTTPTarget struct {
	url    string
	client *http.Client
}

// NewHTTPTarget returns a target posting to url. A nil client gets a 10s timeout.
func NewHTTPTarget(url string, client *http.Client) *HTTPTarget {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTarget{url: url, client: client}
}

func (t *HTTPTarget) Address() string {
	return t.url
}

func (t *HTTPTarget) ReceiveConfirmation(ctx context.Context, tripID string, outcome bool) error {
	body, err := json.Marshal(confirmation{TripID: tripID, Outcome: outcome})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxRevertBytes))
		return &RevertError{Status: resp.StatusCode, Data: data}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
