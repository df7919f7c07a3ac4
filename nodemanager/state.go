package nodemanager

import (
	"time"

	"github.com/alloyai/alloy-nodemanager/alloyclient"
	"github.com/alloyai/alloy-nodemanager/alloytypes"
)

// nodeState is one managed backend's mutable state. Every field here is
// read and written only while the Manager's state lock is held — see
// Manager.mu in manager.go.
type nodeState struct {
	name   string
	client alloyclient.Client
	weight float64

	models              map[string]alloytypes.AlloyModel
	categoriesByModelID map[string]alloytypes.ModalitySet
	supportedModelCount int
	remoteActiveTotal   int

	localInflightTotal   int
	localInflightByModel map[string]int

	lastRefreshTS    time.Time
	lastRefreshError string
}

func newNodeState(name string, client alloyclient.Client, weight float64) *nodeState {
	return &nodeState{
		name:                 name,
		client:               client,
		weight:               weight,
		models:               make(map[string]alloytypes.AlloyModel),
		categoriesByModelID:  make(map[string]alloytypes.ModalitySet),
		localInflightByModel: make(map[string]int),
	}
}

// isModelSupported reports whether this node's cached inventory lists
// modelID as supported. Caller must hold the state lock.
func (n *nodeState) isModelSupported(modelID string) bool {
	m, ok := n.models[modelID]
	return ok && m.IsSupported
}

// increment records one new in-flight dispatch for modelID. Caller must
// hold the state lock.
func (n *nodeState) increment(modelID string) {
	n.localInflightTotal++
	n.localInflightByModel[modelID]++
}

// decrement releases one in-flight dispatch for modelID. It saturates at
// zero and removes zero-valued entries, per spec.md §4.6 and the
// invariant that local_inflight_by_model never holds a zero count.
// Caller must hold the state lock.
func (n *nodeState) decrement(modelID string) {
	if n.localInflightTotal > 0 {
		n.localInflightTotal--
	}
	count := n.localInflightByModel[modelID]
	if count <= 1 {
		delete(n.localInflightByModel, modelID)
	} else {
		n.localInflightByModel[modelID] = count - 1
	}
}

// applyRefresh replaces this node's inventory wholesale after a
// successful fetch. Caller must hold the state lock.
func (n *nodeState) applyRefresh(resp alloytypes.AlloyModelsResponse, now time.Time) {
	models, categories := indexModels(resp)
	n.models = models
	n.categoriesByModelID = categories

	supported := 0
	remoteActive := 0
	for _, m := range models {
		if m.IsSupported {
			supported++
		}
		remoteActive += m.ActiveRequests
	}
	n.supportedModelCount = supported
	n.remoteActiveTotal = remoteActive
	n.lastRefreshTS = now
	n.lastRefreshError = ""
}

// applyRefreshError records a failed refresh. Cached data is left
// untouched. Caller must hold the state lock.
func (n *nodeState) applyRefreshError(message string) {
	n.lastRefreshError = message
}
