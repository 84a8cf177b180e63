package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// EventType names an inbound engagement event.
type EventType string

const (
	EventReply  EventType = "replied"
	EventOpen   EventType = "opened"
	EventOptOut EventType = "opted_out"
)

// EngagementEvent is delivered by channel gateways when a recipient replies
// to, opens, or opts out of a message. RecipientID is set for opt-outs.
type EngagementEvent struct {
	EventType   EventType `json:"event_type"`
	BlastID     string    `json:"blast_id"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EngagementRecorder is satisfied by the campaign service.
type EngagementRecorder interface {
	RecordReply(ctx context.Context, blastID string) error
	RecordOpen(ctx context.Context, blastID string) error
	RecordOptOut(ctx context.Context, blastID, recipientID string) error
}

// SQSAPI is the subset of the SQS client the consumer needs.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer long-polls an SQS queue of engagement events and bumps blast
// counters.
type Consumer struct {
	client   SQSAPI
	queueURL string
	recorder EngagementRecorder
	backoff  time.Duration
}

func NewConsumer(client SQSAPI, queueURL string, recorder EngagementRecorder) *Consumer {
	return &Consumer{client: client, queueURL: queueURL, recorder: recorder, backoff: 5 * time.Second}
}

// Run polls until ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	logger.Info("[tracking.Consumer] started", "queue", c.queueURL)
	for ctx.Err() == nil {
		if err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("[tracking.Consumer] receive failed", "error", err)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
			}
		}
	}
}

// PollOnce receives one batch. Messages that were handled, or that can
// never be handled, are deleted; others stay for redelivery.
func (c *Consumer) PollOnce(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return err
	}
	for _, msg := range out.Messages {
		var evt EngagementEvent
		if msg.Body == nil || json.Unmarshal([]byte(*msg.Body), &evt) != nil {
			logger.Warn("[tracking.Consumer] bad message dropped")
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}
		err := c.process(ctx, evt)
		if err != nil && !permanent(err) {
			logger.Warn("[tracking.Consumer] event failed",
				"event", string(evt.EventType), "blast_id", evt.BlastID, "error", err)
			continue
		}
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return nil
}

var errUnknownEvent = errors.New("unknown event type")

// permanent reports whether redelivering the event cannot help.
func permanent(err error) bool {
	return errors.Is(err, errUnknownEvent) ||
		apperr.Is(err, apperr.KindNotFound) ||
		apperr.Is(err, apperr.KindInvalidUsage)
}

func (c *Consumer) process(ctx context.Context, evt EngagementEvent) error {
	switch evt.EventType {
	case EventReply:
		return c.recorder.RecordReply(ctx, evt.BlastID)
	case EventOpen:
		return c.recorder.RecordOpen(ctx, evt.BlastID)
	case EventOptOut:
		return c.recorder.RecordOptOut(ctx, evt.BlastID, evt.RecipientID)
	default:
		return errUnknownEvent
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.Warn("[tracking.Consumer] delete failed", "error", err)
	}
}
