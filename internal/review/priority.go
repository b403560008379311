package review

import "strings"

// InferPriority derives the priority tier from the agent identity tuple. The
// rules fire in order: planners always review at critical priority, the
// verification stage reviews at low priority, and everything else is normal.
// The result is computed once at creation and never recomputed on revision.
func InferPriority(agentType, phase, task string) Priority {
	if strings.Contains(strings.ToLower(agentType), "planner") {
		return PriorityCritical
	}

	if strings.Contains(strings.ToLower(phase), "verify") ||
		strings.Contains(strings.ToLower(task), "verification") {

		return PriorityLow
	}

	return PriorityNormal
}
