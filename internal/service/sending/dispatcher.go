package sending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/channel"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// RecipientStore loads one recipient.
type RecipientStore interface {
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)
}

// SendRecorder persists a successful send and the short links rendered into
// it, in one transaction. The send is upserted by (BlastID, RecipientID); on
// conflict the existing row keeps its id, which is written back to send.ID,
// and only sent_at moves. created reports whether a new row was inserted.
type SendRecorder interface {
	RecordSend(ctx context.Context, send *domain.Send, linkIDs []string) (created bool, err error)
}

// CompletionFunc receives one result per dispatched recipient.
type CompletionFunc func(ctx context.Context, results []domain.DispatchResult)

// Dispatcher fans a blast out to its recipients.
type Dispatcher struct {
	channels    channel.Registry
	recipients  RecipientStore
	sends       SendRecorder
	concurrency int
	unitTimeout time.Duration
	now         func() time.Time
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConcurrency bounds how many recipients are in flight at once.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithUnitTimeout bounds a single recipient's render+transmit+record.
func WithUnitTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.unitTimeout = t }
}

// WithClock overrides time.Now for sent_at stamps.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(channels channel.Registry, recipients RecipientStore, sends SendRecorder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		channels:    channels,
		recipients:  recipients,
		sends:       sends,
		concurrency: 16,
		unitTimeout: 30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Barrier is the fan-in side of a dispatch. Done is closed after every unit
// has settled and the completion callback has returned.
type Barrier struct {
	done    chan struct{}
	results []domain.DispatchResult
}

// Done returns a channel closed once the dispatch has fully completed.
func (b *Barrier) Done() <-chan struct{} { return b.done }

// Wait blocks until the dispatch completes or ctx ends. Cancelling ctx stops
// the wait only; the dispatch itself keeps running.
func (b *Barrier) Wait(ctx context.Context) ([]domain.DispatchResult, error) {
	select {
	case <-b.done:
		return b.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispatch starts one unit of work per recipient and returns immediately.
// onComplete runs exactly once, after all units settle, with results in
// recipient order. A dispatch that has started cannot be cancelled: units
// run detached from ctx's cancellation and are bounded only by the unit
// timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, c *domain.Campaign, blastID string, recipients []string, onComplete CompletionFunc) *Barrier {
	b := &Barrier{
		done:    make(chan struct{}),
		results: make([]domain.DispatchResult, len(recipients)),
	}
	ctx = context.WithoutCancel(ctx)

	ch, chErr := d.channels.Get(c.Channel)

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.concurrency)
	wg.Add(len(recipients))
	go func() {
		for i, rid := range recipients {
			sem <- struct{}{}
			go func(i int, rid string) {
				defer func() {
					<-sem
					wg.Done()
				}()
				if chErr != nil {
					b.results[i] = failed(rid, chErr)
					return
				}
				b.results[i] = d.sendOne(ctx, ch, c, blastID, rid)
			}(i, rid)
		}
	}()

	go func() {
		wg.Wait()
		if onComplete != nil {
			onComplete(ctx, b.results)
		}
		close(b.done)
	}()
	return b
}

func (d *Dispatcher) sendOne(ctx context.Context, ch channel.Channel, c *domain.Campaign, blastID, recipientID string) (res domain.DispatchResult) {
	if d.unitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.unitTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			res = failed(recipientID, fmt.Errorf("panic: %v", p))
		}
		if !res.OK {
			logger.Warn("[sending.Dispatcher] recipient send failed",
				"campaign_id", c.ID,
				"blast_id", blastID,
				"recipient_id", recipientID,
				"error", res.Error)
		}
	}()

	rcpt, err := d.recipients.GetRecipient(ctx, recipientID)
	if err != nil {
		return failed(recipientID, err)
	}
	if rcpt.IsDeleted() {
		return failed(recipientID, errors.New("recipient deleted"))
	}

	content, err := ch.Render(ctx, c, rcpt)
	if err != nil {
		return failed(recipientID, err)
	}
	if err := ch.Transmit(ctx, rcpt, content); err != nil {
		return failed(recipientID, err)
	}

	send := &domain.Send{
		ID:          uuid.New().String(),
		BlastID:     blastID,
		RecipientID: recipientID,
		SentAt:      d.now().UTC(),
	}
	created, err := d.sends.RecordSend(ctx, send, content.LinkIDs)
	if err != nil {
		return failed(recipientID, fmt.Errorf("record send: %w", err))
	}
	return domain.DispatchResult{
		RecipientID: recipientID,
		SendID:      send.ID,
		OK:          true,
		Created:     created,
	}
}

func failed(recipientID string, err error) domain.DispatchResult {
	return domain.DispatchResult{RecipientID: recipientID, Error: err.Error()}
}
