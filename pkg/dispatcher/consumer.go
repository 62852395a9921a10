package dispatcher

import (
	"context"
	"path"
	"strings"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/eventstore"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// route pairs one trigger with the workflow definition that declared it,
// so a matched subject can be handed to Dispatcher.HandleEvent with the
// right context.
type route struct {
	def     *workflow.WorkflowDefinition
	trigger workflow.TriggerDefinition
}

// Router matches inbound event subjects against every registered
// trigger's subject_pattern and hands matches to a Dispatcher.
type Router struct {
	dispatcher *Dispatcher
	routes     []route
	logger     Logger
}

// NewRouter creates an empty Router. Register workflows' triggers with
// AddWorkflow before calling Handler.
func NewRouter(d *Dispatcher, logger Logger) *Router {
	return &Router{dispatcher: d, logger: logger}
}

// AddWorkflow registers every trigger def declares so future events can
// be routed to it.
func (r *Router) AddWorkflow(def *workflow.WorkflowDefinition) {
	for _, t := range def.Triggers {
		r.routes = append(r.routes, route{def: def, trigger: t})
	}
}

// Handler adapts Router into an eventstore.Handler suitable for
// eventstore.Consumer.Run: match the message subject against every
// registered trigger's subject_pattern (first match wins) and dispatch.
// Subjects with no matching trigger are logged and acked without action,
// like a FilterDrop (nothing is dead-lettered for them).
func (r *Router) Handler() eventstore.Handler {
	return func(ctx context.Context, msg eventstore.Message) error {
		rt, ok := r.match(msg.Subject)
		if !ok {
			r.logger.Warn("no trigger matches subject, dropping", "subject", msg.Subject)
			return nil
		}
		return r.dispatcher.HandleEvent(ctx, rt.def, rt.trigger, msg.ID, msg.Subject, []byte(msg.Payload))
	}
}

func (r *Router) match(subject string) (route, bool) {
	for _, rt := range r.routes {
		if subjectMatches(rt.trigger.SubjectPattern, subject) {
			return rt, true
		}
	}
	return route{}, false
}

// subjectMatches supports '*' as a single-segment wildcard over
// dot-separated subjects (e.g. "orders.*.updated" matches
// "orders.42.updated"), the shape external-event subjects take
// throughout §4.3's trigger examples.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	patternSegs := strings.Split(pattern, ".")
	subjectSegs := strings.Split(subject, ".")
	if len(patternSegs) != len(subjectSegs) {
		return false
	}
	for i, seg := range patternSegs {
		if seg == "*" {
			continue
		}
		if ok, _ := path.Match(seg, subjectSegs[i]); !ok {
			return false
		}
	}
	return true
}
