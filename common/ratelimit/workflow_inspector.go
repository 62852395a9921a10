package ratelimit

import "github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"

// WorkflowTier represents the rate limit tier based on workflow complexity.
type WorkflowTier string

const (
	TierSimple   WorkflowTier = "simple"   // no agent-bound transitions
	TierStandard WorkflowTier = "standard" // 1-2 agent-bound transitions
	TierHeavy    WorkflowTier = "heavy"    // 3+ agent-bound transitions
)

// WorkflowProfile contains analysis of a workflow's complexity.
type WorkflowProfile struct {
	Tier          WorkflowTier
	AgentCount    int  // transitions carrying an AgentBinding
	HasAgentNodes bool
	TotalNodes    int // transition count
}

// InspectWorkflow analyzes a published definition and determines its
// complexity tier. Agent-bound transitions call out to an external agent
// on every fire, so they dominate the tier: one or two agent bindings
// make a workflow standard, three or more make it heavy.
func InspectWorkflow(def *workflow.WorkflowDefinition) WorkflowProfile {
	profile := WorkflowProfile{
		Tier:       TierSimple,
		TotalNodes: len(def.Transitions),
	}

	for _, t := range def.Transitions {
		if t.AgentBinding != nil {
			profile.AgentCount++
			profile.HasAgentNodes = true
		}
	}

	profile.Tier = determineTier(profile.AgentCount)
	return profile
}

func determineTier(agentCount int) WorkflowTier {
	switch {
	case agentCount == 0:
		return TierSimple
	case agentCount <= 2:
		return TierStandard
	default: // 3+
		return TierHeavy
	}
}

func (t WorkflowTier) String() string {
	switch t {
	case TierSimple:
		return "simple"
	case TierStandard:
		return "standard"
	case TierHeavy:
		return "heavy"
	default:
		return "unknown"
	}
}
