package nodemanager

import (
	"context"
	"sort"
)

// selectNode implements the Selector (spec.md §4.4): gather candidates,
// refresh per the configured Mode (outside the state lock), then pick
// the minimum-scoring candidate. It returns *NoCandidateNode if no node
// supports modelID even after a forced refresh.
func (m *Manager) selectNode(ctx context.Context, modelID string) (*nodeState, error) {
	candidates := m.candidatesFor(modelID)

	if len(candidates) == 0 {
		m.refreshNodes(ctx, nil, nil)
		candidates = m.candidatesFor(modelID)
		if len(candidates) == 0 {
			return nil, &NoCandidateNode{ModelID: modelID}
		}
	}

	switch m.mode {
	case QueryEverytime:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.name
		}
		m.refreshNodes(ctx, nil, names)
	case ControlledQuerying:
		ranked := m.rankedCopy(candidates, modelID)
		n := m.maxNodesToQuery
		if n > len(ranked) {
			n = len(ranked)
		}
		names := make([]string, n)
		for i := 0; i < n; i++ {
			names[i] = ranked[i].name
		}
		m.refreshNodes(ctx, nil, names)
	case LocalOnly:
		// no refresh
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	candidates = m.candidatesForLocked(modelID)
	if len(candidates) == 0 {
		return nil, &NoCandidateNode{ModelID: modelID}
	}

	best := candidates[0]
	bestScore := score(best, modelID)
	for _, c := range candidates[1:] {
		s := score(c, modelID)
		if s < bestScore {
			best = c
			bestScore = s
		}
	}
	if m.metrics != nil {
		for _, c := range candidates {
			m.metrics.RecordScore(ctx, c.name, modelID, score(c, modelID))
		}
	}
	return best, nil
}

// candidatesFor takes the state lock and returns every node currently
// listing modelID as supported, in registration order (ties in scoring
// are broken by this order — first in the original node list wins).
func (m *Manager) candidatesFor(modelID string) []*nodeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.candidatesForLocked(modelID)
}

// candidatesForLocked is candidatesFor without taking the lock; caller
// must already hold it.
func (m *Manager) candidatesForLocked(modelID string) []*nodeState {
	var out []*nodeState
	for _, n := range m.nodes {
		if n.isModelSupported(modelID) {
			out = append(out, n)
		}
	}
	return out
}

// rankedCopy takes the state lock and returns candidates sorted
// ascending by current score, used by CONTROLLED_QUERYING to choose
// which nodes are worth refreshing before a pick.
func (m *Manager) rankedCopy(candidates []*nodeState, modelID string) []*nodeState {
	m.mu.Lock()
	defer m.mu.Unlock()

	ranked := make([]*nodeState, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i], modelID) < score(ranked[j], modelID)
	})
	return ranked
}
