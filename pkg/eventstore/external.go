package eventstore

import (
	"context"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
	"github.com/redis/go-redis/v9"
)

// PublishExternalEvent writes a raw external event onto an arbitrary
// stream/subject as a {subject, payload} entry, the shape Consumer reads.
// Nothing in this repository calls it: cmd/engine's ingest endpoint
// writes through Store.AppendEvent instead. pkg/dispatcher only consumes
// it when stream is a workflow's own stream (StreamName).
func PublishExternalEvent(ctx context.Context, client *redis.Client, stream, subject string, payload []byte) error {
	_, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"subject": subject,
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return workflow.New(workflow.KindStoreError, "failed to publish external event", err)
	}
	return nil
}
