// Package enrich runs best-effort background jobs that replace a session's placeholder
// title with one generated from its document.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue cannot accept a job without blocking.
	ErrQueueFull = errors.New("enrichment queue full")
	// ErrQueueClosed is returned once a queue has been closed.
	ErrQueueClosed = errors.New("enrichment queue closed")
)

// Job asks for a title for one session, generated from one document.
type Job struct {
	SessionToken string `json:"session_token"`
	DocID        string `json:"doc_id"`
}

func (j Job) validate() error {
	if j.SessionToken == "" || j.DocID == "" {
		return fmt.Errorf("invalid job: session token and doc id are required")
	}
	return nil
}

func encodeJob(j Job) ([]byte, error) {
	return json.Marshal(j)
}

func decodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return j, j.validate()
}

// Queue delivers jobs at most once. Enqueue never blocks the caller on a full queue.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available, ctx is done or the queue is closed.
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}
