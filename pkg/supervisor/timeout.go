// Package supervisor implements hanging-transition detection: a
// background loop that scans every published workflow's non-terminal
// places for tokens whose UpdatedAt has stalled past a configurable
// window and raises a timeout lifecycle event for each, so a token
// stuck on an outstanding binding call is never silently lost.
//
// Adapted from cmd/workflow-runner/supervisor/timeout.go's
// ticker-driven scan loop, generalized from a single SQL `run` table
// query to the event-sourced token store: tokens live per (workflow,
// place) in Redis, not a relational table, so the scan walks every
// published definition's non-terminal places instead of issuing one
// query against a flat run table.
package supervisor

import (
	"context"
	"time"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/eventstore"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// Store is the subset of pkg/eventstore.Store the detector depends on.
type Store interface {
	ListDefinitions(ctx context.Context) ([]*workflow.WorkflowDefinition, error)
	GetTokensInPlace(ctx context.Context, workflowID, place string) ([]*workflow.Token, error)
	AppendEvent(ctx context.Context, workflowID, subject string, payload interface{}) error
}

// Logger is the narrow logging interface every core package accepts.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Detector periodically scans for tokens that have stopped advancing.
type Detector struct {
	store         Store
	logger        Logger
	checkInterval time.Duration
	timeout       time.Duration
}

// NewDetector creates a Detector with the teacher's defaults (30s scan
// interval, 5-minute stall window); override with WithCheckInterval /
// WithTimeout.
func NewDetector(store Store, logger Logger) *Detector {
	return &Detector{
		store:         store,
		logger:        logger,
		checkInterval: 30 * time.Second,
		timeout:       5 * time.Minute,
	}
}

// WithCheckInterval overrides the scan cadence.
func (d *Detector) WithCheckInterval(interval time.Duration) *Detector {
	d.checkInterval = interval
	return d
}

// WithTimeout overrides the stall window.
func (d *Detector) WithTimeout(timeout time.Duration) *Detector {
	d.timeout = timeout
	return d
}

// Run blocks, scanning on checkInterval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("hanging-transition detector starting",
		"check_interval", d.checkInterval, "timeout", d.timeout)

	ticker := time.NewTicker(d.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("hanging-transition detector shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := d.scan(ctx); err != nil {
				d.logger.Error("hanging-transition scan failed", "error", err)
			}
		}
	}
}

// scan walks every published workflow's non-terminal places, looking
// for tokens whose UpdatedAt predates the stall cutoff.
func (d *Detector) scan(ctx context.Context) error {
	defs, err := d.store.ListDefinitions(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-d.timeout)
	for _, def := range defs {
		for _, place := range def.Places {
			if def.IsTerminal(place) {
				continue
			}
			tokens, err := d.store.GetTokensInPlace(ctx, def.Identifier, place)
			if err != nil {
				d.logger.Warn("failed to list tokens in place", "workflow_id", def.Identifier, "place", place, "error", err)
				continue
			}
			for _, tok := range tokens {
				if tok.UpdatedAt.Before(cutoff) {
					d.flagHanging(ctx, def.Identifier, tok, cutoff)
				}
			}
		}
	}
	return nil
}

// flagHanging records a Timeout lifecycle event for a stalled token.
// It does not move the token to another place: the scan has no
// binding-specific knowledge of what the outstanding call was doing,
// so it cannot decide a safe destination place on the token's behalf.
// The event makes the stall observable to operators and to any
// downstream alerting subscribed to the workflow's lifecycle subject.
func (d *Detector) flagHanging(ctx context.Context, workflowID string, tok *workflow.Token, cutoff time.Time) {
	stallErr := workflow.New(workflow.KindTimeout, "token has not advanced within the configured window", nil)
	d.logger.Warn("hanging token detected",
		"workflow_id", workflowID, "token_id", tok.ID, "place", tok.Place,
		"updated_at", tok.UpdatedAt, "cutoff", cutoff)

	if err := d.store.AppendEvent(ctx, workflowID, eventstore.LifecycleSubject(workflowID), map[string]interface{}{
		"event":    "token_hanging",
		"token_id": tok.ID,
		"place":    tok.Place,
		"kind":     string(stallErr.Kind),
		"message":  stallErr.Message,
	}); err != nil {
		d.logger.Error("failed to append hanging-token event", "token_id", tok.ID, "error", err)
	}
}
