// Package dispatcher implements the webhook-to-workflow dispatcher
// (C4): ingest external events, correlate them to tokens, and apply
// the trigger's configured action with retry/DLQ handling for
// failures that can't be resolved by simple redelivery.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// Logger is the narrow logging interface every core package accepts.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Store is the subset of pkg/eventstore.Store the dispatcher needs.
type Store interface {
	ListWorkflowTokens(ctx context.Context, workflowID string) ([]*workflow.Token, error)
	GetToken(ctx context.Context, workflowID, tokenID string) (*workflow.Token, error)
	PublishToken(ctx context.Context, token *workflow.Token) error
}

// InstanceCreator is the subset of pkg/workflow.Engine the dispatcher
// calls to create a new token from a triggering event.
type InstanceCreator interface {
	CreateInstance(ctx context.Context, def *workflow.WorkflowDefinition, initialData, metadata map[string]interface{}, triggeredBy string) (*workflow.Token, error)
}

// Dispatcher ties correlation, idempotency, rate limiting, and DLQ
// routing together around one trigger's configured action.
type Dispatcher struct {
	store   Store
	engine  InstanceCreator
	limiter *RateLimiter
	dedup   *DedupCache
	dlq     *DLQ
	logger  Logger
}

// New constructs a Dispatcher. limiter, dedup, and dlq may each be nil
// to disable that concern (e.g. in tests).
func New(store Store, engine InstanceCreator, limiter *RateLimiter, dedup *DedupCache, dlq *DLQ, logger Logger) *Dispatcher {
	return &Dispatcher{store: store, engine: engine, limiter: limiter, dedup: dedup, dlq: dlq, logger: logger}
}

// HandleEvent applies trigger's configured action to one incoming
// event. It never returns an error for conditions the failure taxonomy
// treats as ack-without-retry (Duplicate, FilterDrop); those are
// logged and return nil. Conditions requiring redelivery (rate limit
// exceeded, a rate-limiter or dedup-cache error, a failed correlation
// lookup) return an error so the caller's consumer discipline can defer
// acknowledgement. A create/update that still fails after retry is
// dead-lettered and returns nil.
func (d *Dispatcher) HandleEvent(ctx context.Context, def *workflow.WorkflowDefinition, trigger workflow.TriggerDefinition, eventID string, subject string, payload []byte) error {
	if dropped, reason := d.filtersReject(trigger, payload); dropped {
		d.logger.Debug("event dropped by filter", "subject", subject, "reason", reason)
		return nil
	}

	if d.limiter != nil && trigger.RateLimit.TokensPerMinute > 0 {
		allowed, err := d.limiter.Allow(ctx, triggerKey(def.Identifier, subject), trigger.RateLimit.TokensPerMinute, trigger.RateLimit.Burst)
		if err != nil {
			return err
		}
		if !allowed {
			return workflow.New(workflow.KindOverloaded, "trigger rate limit exceeded", nil)
		}
	}

	if d.dedup != nil {
		seen, err := d.dedup.Seen(ctx, def.Identifier, eventID)
		if err != nil {
			return err
		}
		if seen {
			d.logger.Debug("duplicate event acked without action", "subject", subject, "event_id", eventID)
			return nil
		}
	}

	key, hasKey := ExtractCorrelationKey(payload, trigger.Correlation.PayloadPath)
	if !hasKey && trigger.Correlation.PayloadPath != "" {
		return d.deadLetter(ctx, def.Identifier, subject, payload, workflow.KindMappingError,
			"correlation key could not be extracted from payload")
	}

	var existing *workflow.Token
	var err error
	if hasKey {
		existing, err = FindTokenByCorrelation(ctx, d.store, def.Identifier, trigger.Correlation.TokenField, key)
		if err != nil {
			return err
		}
	}

	switch trigger.Action {
	case workflow.ActionCreateNewInstance:
		return d.handleCreate(ctx, def, trigger, existing, key, subject, payload)
	case workflow.ActionUpdateExistingInstance:
		return d.handleUpdate(ctx, def, trigger, existing, subject, payload)
	case workflow.ActionCreateOrUpdate:
		if existing == nil {
			return d.handleCreate(ctx, def, trigger, existing, key, subject, payload)
		}
		return d.handleUpdate(ctx, def, trigger, existing, subject, payload)
	default:
		return d.deadLetter(ctx, def.Identifier, subject, payload, workflow.KindMappingError,
			"unknown trigger action: "+string(trigger.Action))
	}
}

func (d *Dispatcher) handleCreate(ctx context.Context, def *workflow.WorkflowDefinition, trigger workflow.TriggerDefinition, existing *workflow.Token, key, subject string, payload []byte) error {
	if existing != nil && !def.IsTerminal(existing.Place) {
		d.logger.Debug("create-new-instance rejected: active token already exists", "workflow_id", def.Identifier, "key", key)
		return nil // Duplicate: ack, no DLQ (§4.3 failure taxonomy).
	}

	data := MapPayloadFields(payload, trigger.InitialDataMapping)
	if trigger.Correlation.TokenField != "" && key != "" {
		data[trigger.Correlation.TokenField] = key
	}

	err := retryDispatch(ctx, trigger.Retry, func(ctx context.Context) error {
		_, err := d.engine.CreateInstance(ctx, def, data, nil, "dispatcher:"+trigger.SubjectPattern)
		return err
	})
	if err != nil {
		return d.deadLetter(ctx, def.Identifier, subject, payload, errorKind(err),
			"create-new-instance failed after retries: "+err.Error())
	}
	return nil
}

func (d *Dispatcher) handleUpdate(ctx context.Context, def *workflow.WorkflowDefinition, trigger workflow.TriggerDefinition, existing *workflow.Token, subject string, payload []byte) error {
	if existing == nil {
		return d.deadLetter(ctx, def.Identifier, subject, payload, workflow.KindOrphanEvent,
			"no matching token for update-existing-instance event")
	}

	updates := MapPayloadFields(payload, trigger.UpdateMapping)
	err := retryDispatch(ctx, trigger.Retry, func(ctx context.Context) error {
		current, err := d.store.GetToken(ctx, def.Identifier, existing.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return workflow.New(workflow.KindUnknownToken, "token disappeared before update could apply", nil)
		}
		for field, v := range updates {
			current.Data[field] = v
		}
		return d.store.PublishToken(ctx, current)
	})
	if err != nil {
		return d.deadLetter(ctx, def.Identifier, subject, payload, errorKind(err),
			"update-existing-instance failed after retries: "+err.Error())
	}
	return nil
}

func (d *Dispatcher) filtersReject(trigger workflow.TriggerDefinition, payload []byte) (bool, string) {
	for _, f := range trigger.Filters {
		key, ok := ExtractCorrelationKey(payload, f.PayloadPath)
		if !ok {
			return true, "filter field missing: " + f.PayloadPath
		}
		matched := matchFilter(key, f)
		if !matched {
			return true, "filter predicate failed: " + f.PayloadPath
		}
	}
	return false, ""
}

func matchFilter(fieldValue string, f workflow.FilterPredicate) bool {
	target := fmt.Sprintf("%v", f.Value)
	switch f.Operator {
	case "equals", "":
		return fieldValue == target
	case "not-equals":
		return fieldValue != target
	default:
		return fieldValue == target
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, workflowID, subject string, payload []byte, kind workflow.Kind, reason string) error {
	d.logger.Warn("dead-lettering event", "workflow_id", workflowID, "subject", subject, "kind", kind, "reason", reason)
	if d.dlq == nil {
		return nil
	}
	raw, err := json.Marshal(json.RawMessage(payload))
	if err != nil {
		raw = payload
	}
	if err := d.dlq.Record(ctx, DeadLetterEntry{
		WorkflowID: workflowID,
		Subject:    subject,
		Payload:    raw,
		Kind:       string(kind),
		Reason:     reason,
	}); err != nil {
		d.logger.Error("failed to record dead letter", "error", err)
	}
	return nil
}

func triggerKey(workflowID, subject string) string {
	return workflowID + ":" + subject
}

// errorKind recovers the *workflow.Error's Kind for dead-letter tagging,
// falling back to KindStoreError for errors retryDispatch exhausted
// retries on without a typed kind attached (e.g. a raw store driver error).
func errorKind(err error) workflow.Kind {
	var werr *workflow.Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return workflow.KindStoreError
}
