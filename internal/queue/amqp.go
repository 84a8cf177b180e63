package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

const retryHeader = "x-retry-count"

// AMQPChannel is the subset of *amqp.Channel used by AMQP.
type AMQPChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQP is a durable RabbitMQ-backed queue. Deliveries are acked manually
// after the handler returns; failed jobs are republished with an incremented
// retry header until maxRetries is reached.
type AMQP struct {
	conn       *amqp.Connection
	ch         AMQPChannel
	name       string
	maxRetries int

	mu sync.Mutex // amqp channels are not safe for concurrent publish
}

// DialAMQP connects to url and declares the durable queue name.
func DialAMQP(url, name string, prefetch, maxRetries int) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	q, err := NewAMQP(ch, name, prefetch, maxRetries)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	q.conn = conn
	return q, nil
}

// NewAMQP wraps an open channel.
func NewAMQP(ch AMQPChannel, name string, prefetch, maxRetries int) (*AMQP, error) {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	return &AMQP{ch: ch, name: name, maxRetries: maxRetries}, nil
}

func (q *AMQP) Publish(ctx context.Context, job SendJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.Publish("", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Headers:      amqp.Table{retryHeader: int32(job.Attempt)},
		Body:         body,
	})
}

// Consume handles deliveries one at a time per prefetch slot until ctx is
// done or the channel closes.
func (q *AMQP) Consume(ctx context.Context, h Handler) error {
	deliveries, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.name, err)
	}
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				q.handle(ctx, h, d)
			}(d)
		}
	}
}

func (q *AMQP) handle(ctx context.Context, h Handler, d amqp.Delivery) {
	var job SendJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		logger.Error("[queue.AMQP] invalid job payload", "error", err)
		d.Ack(false)
		return
	}
	job.Attempt = retryCount(d.Headers)

	err := h(ctx, job)
	if err == nil {
		d.Ack(false)
		return
	}

	job.Attempt++
	if IsPermanent(err) || job.Attempt > q.maxRetries {
		logger.Error("[queue.AMQP] job dropped",
			"job_id", job.ID,
			"campaign_id", job.CampaignID,
			"attempts", job.Attempt,
			"error", err)
		d.Ack(false)
		return
	}
	if pubErr := q.Publish(context.WithoutCancel(ctx), job); pubErr != nil {
		logger.Warn("[queue.AMQP] republish failed, requeueing", "job_id", job.ID, "error", pubErr)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (q *AMQP) Close() error {
	err := q.ch.Close()
	if q.conn != nil {
		if cerr := q.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
