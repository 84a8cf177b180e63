// Package queue carries send jobs from the API process to the workers that
// run the resolve/dispatch pipeline.
package queue

import (
	"context"
	"errors"
	"time"
)

// SendJob asks a worker to execute one send of a campaign. BlastID is
// chosen at enqueue time so a redelivered job reuses the same blast.
type SendJob struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	BlastID    string    `json:"blast_id"`
	ActorID    string    `json:"actor_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempt    int       `json:"attempt,omitempty"`
}

// Handler processes one job. Returning an error schedules a retry unless
// the error is wrapped with Permanent.
type Handler func(ctx context.Context, job SendJob) error

// Queue is implemented by Memory and AMQP.
type Queue interface {
	Publish(ctx context.Context, job SendJob) error
	// Consume blocks, delivering jobs to h until ctx is done.
	Consume(ctx context.Context, h Handler) error
	Close() error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("queue closed")
