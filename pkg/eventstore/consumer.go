package eventstore

import (
	"context"
	"time"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
	"github.com/redis/go-redis/v9"
)

// Message is a single durable-consumer delivery: the raw entry fields
// plus enough identity to acknowledge it.
type Message struct {
	ID      string
	Subject string
	Payload string
}

// Handler processes one Message. Returning an error does not stop the
// consumer loop, but withholds acknowledgement so the message is
// redelivered: the handler must route any failure it does not want
// redelivered (a dead-lettered event, a duplicate, a filtered-out
// event) to its own resolution and return nil, never a bare error for
// a condition it already resolved.
type Handler func(ctx context.Context, msg Message) error

// Consumer is a durable, explicitly-acknowledging reader over a
// stream — the "genuine event processing" counterpart to
// Store's non-acknowledging query reads (§4.1's read discipline).
// Grounded on the teacher's HTTPWorker/RunRequestConsumer XREADGROUP/XACK
// loop.
type Consumer struct {
	redis         *redis.Client
	logger        Logger
	stream        string
	consumerGroup string
	consumerName  string
	blockFor      time.Duration
}

// NewConsumer creates a durable consumer over an arbitrary stream.
// cmd/dispatcher runs one over each workflow's own stream, which holds
// external events appended by the ingest endpoint alongside token and
// lifecycle entries; its Router acks subjects no trigger matches.
func NewConsumer(client *redis.Client, logger Logger, stream, consumerGroup, consumerName string) *Consumer {
	return &Consumer{
		redis:         client,
		logger:        logger,
		stream:        stream,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		blockFor:      5 * time.Second,
	}
}

// Run processes messages until ctx is cancelled. A message is only
// acknowledged once handle returns nil, i.e. once the token operation it
// performs has committed (or the event has been routed to the caller's
// own DLQ and handle itself returns nil for that case) — §4.3's
// acknowledgement discipline. A non-nil return leaves the message
// pending for redelivery.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	if err := c.redis.XGroupCreateMkStream(ctx, c.stream, c.consumerGroup, "0").Err(); err != nil && err != redis.Nil {
		if !isBusyGroup(err) {
			return workflow.New(workflow.KindStoreError, "failed to create consumer group", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.processNext(ctx, handle); err != nil {
				c.logger.Error("consumer processing error", "stream", c.stream, "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (c *Consumer) processNext(ctx context.Context, handle Handler) error {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{c.stream, ">"},
		Count:    1,
		Block:    c.blockFor,
	}).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, m := range stream.Messages {
			subject, _ := m.Values["subject"].(string)
			payload, _ := m.Values["payload"].(string)
			msg := Message{ID: m.ID, Subject: subject, Payload: payload}

			if err := handle(ctx, msg); err != nil {
				c.logger.Error("handler failed, leaving message pending for redelivery", "message_id", m.ID, "error", err)
				continue
			}
			if err := c.redis.XAck(ctx, c.stream, c.consumerGroup, m.ID).Err(); err != nil {
				c.logger.Error("failed to ack message", "message_id", m.ID, "error", err)
			}
		}
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
