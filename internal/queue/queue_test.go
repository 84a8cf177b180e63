package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_DeliversPublishedJobs(t *testing.T) {
	q := NewMemory(8, 0, time.Millisecond)
	require.NoError(t, q.Publish(context.Background(), SendJob{ID: "j1", CampaignID: "c1"}))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan SendJob, 1)
	go q.Consume(ctx, func(_ context.Context, job SendJob) error {
		got <- job
		return nil
	})

	select {
	case job := <-got:
		assert.Equal(t, "j1", job.ID)
	case <-time.After(time.Second):
		t.Fatal("job not delivered")
	}
	cancel()
}

func TestMemory_RetriesThenSucceeds(t *testing.T) {
	q := NewMemory(8, 3, time.Millisecond)
	var calls atomic.Int32
	done := make(chan int, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Consume(ctx, func(_ context.Context, job SendJob) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		done <- job.Attempt
		return nil
	})
	require.NoError(t, q.Publish(ctx, SendJob{ID: "j1"}))

	select {
	case attempt := <-done:
		assert.Equal(t, 2, attempt)
		assert.Equal(t, int32(3), calls.Load())
	case <-time.After(time.Second):
		t.Fatal("job never succeeded")
	}
}

func TestMemory_PermanentErrorNotRetried(t *testing.T) {
	q := NewMemory(8, 5, time.Millisecond)
	var calls atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	go q.Consume(ctx, func(context.Context, SendJob) error {
		calls.Add(1)
		return Permanent(errors.New("campaign gone"))
	})
	require.NoError(t, q.Publish(ctx, SendJob{ID: "j1"}))
	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemory_GivesUpAfterMaxRetries(t *testing.T) {
	q := NewMemory(8, 2, time.Millisecond)
	var calls atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	go q.Consume(ctx, func(context.Context, SendJob) error {
		calls.Add(1)
		return errors.New("always")
	})
	require.NoError(t, q.Publish(ctx, SendJob{ID: "j1"}))
	time.Sleep(100 * time.Millisecond)
	cancel()
	assert.Equal(t, int32(3), calls.Load())
}

func TestMemory_PublishAfterClose(t *testing.T) {
	q := NewMemory(1, 0, 0)
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Publish(context.Background(), SendJob{}), ErrClosed)
}

func TestPermanent(t *testing.T) {
	base := errors.New("x")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

type fakeAck struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAck) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAck) Reject(uint64, bool) error { return nil }

type fakeChannel struct {
	mu         sync.Mutex
	declared   string
	published  []amqp.Publishing
	publishErr error
	deliveries chan amqp.Delivery
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.declared = name
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Qos(int, int, bool) error { return nil }

func (c *fakeChannel) Publish(_, _ string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) Close() error { return nil }

func TestAMQP_PublishIsPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	q, err := NewAMQP(ch, "campaign_sends", 4, 3)
	require.NoError(t, err)
	assert.Equal(t, "campaign_sends", ch.declared)

	require.NoError(t, q.Publish(context.Background(), SendJob{ID: "j1", CampaignID: "c1", BlastID: "b1"}))
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "j1", msg.MessageId)

	var job SendJob
	require.NoError(t, json.Unmarshal(msg.Body, &job))
	assert.Equal(t, "b1", job.BlastID)
}

func delivery(t *testing.T, ack *fakeAck, job SendJob, retries int32) amqp.Delivery {
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Headers:      amqp.Table{retryHeader: retries},
		Body:         body,
	}
}

func TestAMQP_HandleAcksSuccess(t *testing.T) {
	ch := &fakeChannel{}
	q, err := NewAMQP(ch, "q", 0, 3)
	require.NoError(t, err)
	ack := &fakeAck{}

	q.handle(context.Background(), func(context.Context, SendJob) error { return nil }, delivery(t, ack, SendJob{ID: "j1"}, 0))
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, ch.published)
}

func TestAMQP_HandleRepublishesWithRetryCount(t *testing.T) {
	ch := &fakeChannel{}
	q, err := NewAMQP(ch, "q", 0, 3)
	require.NoError(t, err)
	ack := &fakeAck{}

	q.handle(context.Background(), func(context.Context, SendJob) error { return errors.New("db down") },
		delivery(t, ack, SendJob{ID: "j1"}, 1))
	assert.Equal(t, 1, ack.acks)
	require.Len(t, ch.published, 1)
	assert.Equal(t, int32(2), ch.published[0].Headers[retryHeader])
}

func TestAMQP_HandleDropsAfterMaxRetries(t *testing.T) {
	ch := &fakeChannel{}
	q, err := NewAMQP(ch, "q", 0, 3)
	require.NoError(t, err)
	ack := &fakeAck{}

	q.handle(context.Background(), func(context.Context, SendJob) error { return errors.New("db down") },
		delivery(t, ack, SendJob{ID: "j1"}, 3))
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, ch.published)
}

func TestAMQP_HandleNacksWhenRepublishFails(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	q, err := NewAMQP(ch, "q", 0, 3)
	require.NoError(t, err)
	ack := &fakeAck{}

	q.handle(context.Background(), func(context.Context, SendJob) error { return errors.New("db down") },
		delivery(t, ack, SendJob{ID: "j1"}, 0))
	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue)
}

func TestAMQP_ConsumeStopsWhenDeliveriesClose(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	q, err := NewAMQP(ch, "q", 0, 3)
	require.NoError(t, err)
	ack := &fakeAck{}
	ch.deliveries <- delivery(t, ack, SendJob{ID: "j1"}, 0)
	close(ch.deliveries)

	var seen atomic.Int32
	require.NoError(t, q.Consume(context.Background(), func(context.Context, SendJob) error {
		seen.Add(1)
		return nil
	}))
	assert.Equal(t, int32(1), seen.Load())
	assert.Equal(t, 1, ack.acks)
}
