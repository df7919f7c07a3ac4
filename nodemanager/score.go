package nodemanager

import (
	"math"

	"github.com/alloyai/alloy-nodemanager/alloytypes"
)

// statusPenalty maps a model's allocation status to the scoring
// function's status term. Any status not in this table (there is none
// today, but a future backend revision might add one) scores 1.5.
func statusPenalty(status alloytypes.AllocationStatus) float64 {
	switch status {
	case alloytypes.AllocationAllocated:
		return 0.0
	case alloytypes.AllocationDeallocated:
		return 1.0
	case alloytypes.AllocationQueue:
		return 4.0
	default:
		return 1.5
	}
}

// score computes the Selector's ranking value for node n serving
// modelID: lower is better. It is +Inf iff n's cached inventory doesn't
// currently list modelID as supported, so unsupported candidates are
// never picked. Caller must hold the state lock (score only reads n's
// fields, no network calls, no mutation).
func score(n *nodeState, modelID string) float64 {
	model, ok := n.models[modelID]
	if !ok || !model.IsSupported {
		return math.Inf(1)
	}

	remoteActive := model.ActiveRequests
	localActiveModel := n.localInflightByModel[modelID]
	activeRequests := float64(remoteActive + localActiveModel)

	loadScore := activeRequests
	if !model.SupportsConcurrentRequests {
		loadScore *= 10.0
	}

	scarcityBias := math.Max(float64(n.supportedModelCount), 1) * 0.01
	weightBias := -math.Max(n.weight, 0.0) * 0.25
	nodeLoadBias := float64(n.localInflightTotal) * 0.1
	remoteLoadBias := float64(n.remoteActiveTotal) * 0.01

	return loadScore + statusPenalty(model.AllocationStatus) + scarcityBias + nodeLoadBias + remoteLoadBias + weightBias
}
