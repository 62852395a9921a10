package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/castingclouds/circuit-breaker-sub001/common/bootstrap"
	"github.com/castingclouds/circuit-breaker-sub001/common/server"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/dispatcher"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/eventstore"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/streaming"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// workflowDiscoveryInterval is how often the dispatcher re-scans the
// published workflow registry for definitions it doesn't yet have a
// consumer running for. New workflows publish while the dispatcher is
// already running, so a one-shot startup scan is not enough.
const workflowDiscoveryInterval = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Setup(ctx, "dispatcher")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap dispatcher: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	store := eventstore.New(components.Redis, components.Logger)
	publisher := streaming.NewEnginePublisher(components.Redis, components.Logger)
	engine := workflow.NewEngine(store, noopRuleEval{}, nil, components.Logger,
		workflow.WithTransitionsSubject(eventstore.TransitionsSubject),
		workflow.WithLifecycleSubject(eventstore.LifecycleSubject),
		workflow.WithPublisher(publisher),
	)

	dlq := dispatcher.NewDLQ(components.DB.Pool)
	if err := dlq.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure dead-letter schema: %v\n", err)
		os.Exit(1)
	}
	limiter := dispatcher.NewRateLimiter(components.Redis)
	dedup := dispatcher.NewDedupCache(components.Redis, components.Config.Dispatcher.DedupWindow)
	disp := dispatcher.New(store, engine, limiter, dedup, dlq, components.Logger)
	router := dispatcher.NewRouter(disp, components.Logger)

	consumerName := fmt.Sprintf("dispatcher_%s", uuid.New().String()[:8])
	runner := &consumerRunner{
		store:         store,
		redis:         components.Redis,
		router:        router,
		logger:        components.Logger,
		consumerGroup: components.Config.Dispatcher.ConsumerGroup,
		consumerName:  consumerName,
		running:       make(map[string]context.CancelFunc),
	}

	go runner.discoverLoop(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HealthHandler())
	srv := server.New(components.Config.Service.Name, components.Config.Service.Port, mux, components.Logger)

	components.Logger.Info("dispatcher ready", "consumer_name", consumerName)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// noopRuleEval satisfies workflow.RuleEval for the dispatcher's Engine,
// which only ever calls CreateInstance; Fire (the only path that
// evaluates rules) is never reached from dispatcher.HandleEvent.
type noopRuleEval struct{}

func (noopRuleEval) EvaluateNode(*workflow.RuleNode, *workflow.Token, *workflow.TransitionDefinition) (bool, string) {
	return true, ""
}

// consumerRunner discovers published workflows and keeps one durable
// stream consumer running per workflow, restarting the discovery scan
// on an interval so newly published workflows pick up a consumer
// without a dispatcher restart.
type consumerRunner struct {
	store         *eventstore.Store
	redis         *redis.Client
	router        *dispatcher.Router
	logger        dispatcher.Logger
	consumerGroup string
	consumerName  string

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func (r *consumerRunner) discoverLoop(ctx context.Context) {
	ticker := time.NewTicker(workflowDiscoveryInterval)
	defer ticker.Stop()

	r.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			r.stopAll()
			return
		case <-ticker.C:
			r.scan(ctx)
		}
	}
}

func (r *consumerRunner) scan(ctx context.Context) {
	defs, err := r.store.ListDefinitions(ctx)
	if err != nil {
		r.logger.Warn("failed to list published workflows", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range defs {
		if _, ok := r.running[def.Identifier]; ok {
			continue
		}
		if len(def.Triggers) == 0 {
			continue
		}
		r.router.AddWorkflow(def)

		consumerCtx, cancel := context.WithCancel(ctx)
		r.running[def.Identifier] = cancel
		go r.runConsumer(consumerCtx, def.Identifier)
	}
}

func (r *consumerRunner) runConsumer(ctx context.Context, workflowID string) {
	if err := r.store.EnsureStream(ctx, workflowID, r.consumerGroup); err != nil {
		r.logger.Error("failed to ensure stream for workflow", "workflow_id", workflowID, "error", err)
		return
	}
	consumer := eventstore.NewConsumer(r.redis, r.logger, eventstore.StreamName(workflowID), r.consumerGroup, r.consumerName)
	if err := consumer.Run(ctx, r.router.Handler()); err != nil && ctx.Err() == nil {
		r.logger.Error("consumer loop exited", "workflow_id", workflowID, "error", err)
	}
}

func (r *consumerRunner) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.running {
		cancel()
	}
}
