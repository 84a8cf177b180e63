// Package audit ships campaign lifecycle events to the audit log. The
// engine only writes events; nothing in this module reads them back.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Envelope is the message body written to the audit queue.
type Envelope struct {
	domain.AuditEvent
	OccurredAt time.Time `json:"occurred_at"`
}

// LogClient writes events to the process log. Used in development and when
// no audit queue is configured.
type LogClient struct{}

func (LogClient) Record(_ context.Context, ev domain.AuditEvent) error {
	logger.Info("[audit] event",
		"event_type", string(ev.Type),
		"actor_id", ev.ActorID,
		"source_table", ev.SourceTable,
		"source_id", ev.SourceID,
		"params", ev.Params,
	)
	return nil
}

// SQSAPI is the subset of the SQS client used for publishing.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSClient publishes each event as one JSON message.
type SQSClient struct {
	client   SQSAPI
	queueURL string
	timeout  time.Duration
	now      func() time.Time
}

func NewSQSClient(client SQSAPI, queueURL string) *SQSClient {
	return &SQSClient{client: client, queueURL: queueURL, timeout: 5 * time.Second, now: time.Now}
}

// Record sends ev. The send is detached from the caller's cancellation so
// an event is not lost because the request that produced it finished.
func (c *SQSClient) Record(ctx context.Context, ev domain.AuditEvent) error {
	body, err := json.Marshal(Envelope{AuditEvent: ev, OccurredAt: c.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	_, err = c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}
