// Package container wires together the engine's core dependencies
// once at startup (singleton pattern): the event store, the rule
// evaluator, the binding registry, the transition engine, the
// dispatcher (so the engine can accept external events directly
// without a separate dispatcher process for development/testing),
// and the dead-letter journal.
package container

import (
	"context"
	"fmt"

	"github.com/castingclouds/circuit-breaker-sub001/common/bootstrap"
	"github.com/castingclouds/circuit-breaker-sub001/common/ratelimit"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/binding"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/dispatcher"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/eventstore"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/rules"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/streaming"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/supervisor"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// Container holds all initialized services, created once at startup.
type Container struct {
	Components *bootstrap.Components

	Store      *eventstore.Store
	Registry   *binding.Registry
	Engine     *workflow.Engine
	Dispatcher *dispatcher.Dispatcher
	Router     *dispatcher.Router
	DLQ        *dispatcher.DLQ
	RateLimit  *ratelimit.RateLimiter
	Supervisor *supervisor.Detector
}

// New initializes the engine's dependency graph bottom-up.
func New(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	store := eventstore.New(components.Redis, components.Logger)

	registry := binding.NewRegistry()
	registry.RegisterFunction("http", binding.NewHTTPFunctionBinding(components.Logger))

	ruleRegistry := rules.NewRegistry()
	evaluator := workflow.NewEvaluator(rules.NewEvaluator(ruleRegistry))

	binder := binding.NewAdapter(registry)
	publisher := streaming.NewEnginePublisher(components.Redis, components.Logger)
	engine := workflow.NewEngine(store, evaluator, binder, components.Logger,
		workflow.WithTransitionsSubject(eventstore.TransitionsSubject),
		workflow.WithLifecycleSubject(eventstore.LifecycleSubject),
		workflow.WithPublisher(publisher),
	)

	dlq := dispatcher.NewDLQ(components.DB.Pool)
	if err := dlq.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure dead-letter schema: %w", err)
	}

	limiter := dispatcher.NewRateLimiter(components.Redis)
	dedup := dispatcher.NewDedupCache(components.Redis, components.Config.Dispatcher.DedupWindow)
	disp := dispatcher.New(store, engine, limiter, dedup, dlq, components.Logger)
	router := dispatcher.NewRouter(disp, components.Logger)

	opRateLimiter := ratelimit.NewRateLimiter(components.Redis, components.Logger)
	detector := supervisor.NewDetector(store, components.Logger)

	return &Container{
		Components: components,
		Store:      store,
		Registry:   registry,
		Engine:     engine,
		Dispatcher: disp,
		Router:     router,
		DLQ:        dlq,
		RateLimit:  opRateLimiter,
		Supervisor: detector,
	}, nil
}
