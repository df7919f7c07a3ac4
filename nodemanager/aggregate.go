package nodemanager

import (
	"sort"

	"github.com/alloyai/alloy-nodemanager/alloytypes"
)

// combinedModelsResponse merges every node's cached inventory into one
// AlloyModelsResponse. Caller must hold m.mu for the duration of the
// merge (it only reads node state, no network calls).
func (m *Manager) combinedModelsResponse() alloytypes.AlloyModelsResponse {
	summary := make(map[string]alloytypes.AlloyModel)
	categories := make(map[string]alloytypes.ModalitySet)

	for _, n := range m.nodes {
		for modelID, model := range n.models {
			set, ok := categories[modelID]
			if !ok {
				set = alloytypes.NewModalitySet()
				categories[modelID] = set
			}
			if nodeSet, ok := n.categoriesByModelID[modelID]; ok {
				categories[modelID] = set.Union(nodeSet)
			}

			existing, seen := summary[modelID]
			if !seen {
				summary[modelID] = model.Clone()
				continue
			}

			existing.ActiveRequests += model.ActiveRequests
			existing.IsSupported = existing.IsSupported || model.IsSupported
			existing.SupportsConcurrentRequests = existing.SupportsConcurrentRequests || model.SupportsConcurrentRequests
			existing.AllocationStatus = promoteAllocationStatus(existing.AllocationStatus, model.AllocationStatus)
			if len(existing.Capabilities) == 0 && len(model.Capabilities) > 0 {
				existing.Capabilities = model.Clone().Capabilities
			}
			summary[modelID] = existing
		}
	}

	grouped := map[alloytypes.Modality][]alloytypes.AlloyModel{
		alloytypes.ModalityImage: nil,
		alloytypes.ModalityAudio: nil,
		alloytypes.ModalityVideo: nil,
		alloytypes.ModalityText:  nil,
	}
	for modelID, model := range summary {
		modelCategories := categories[modelID]
		if len(modelCategories) == 0 {
			modelCategories = alloytypes.NewModalitySet()
			for _, capability := range model.Capabilities {
				for mod := range capability.Outputs {
					modelCategories.Add(mod)
				}
			}
		}
		for modality := range modelCategories {
			if _, known := grouped[modality]; known {
				grouped[modality] = append(grouped[modality], model)
			}
		}
	}

	for modality := range grouped {
		sort.Slice(grouped[modality], func(i, j int) bool {
			return grouped[modality][i].ModelID < grouped[modality][j].ModelID
		})
	}

	return alloytypes.AlloyModelsResponse{
		Image: grouped[alloytypes.ModalityImage],
		Audio: grouped[alloytypes.ModalityAudio],
		Video: grouped[alloytypes.ModalityVideo],
		Text:  grouped[alloytypes.ModalityText],
	}
}

// allocationRank orders allocation statuses from best to worst so
// promotion only ever moves a model's combined status upward.
var allocationRank = map[alloytypes.AllocationStatus]int{
	alloytypes.AllocationAllocated:   2,
	alloytypes.AllocationQueue:       1,
	alloytypes.AllocationDeallocated: 0,
}

// promoteAllocationStatus returns whichever of existing/incoming ranks
// higher by the ALLOCATED > QUEUE > DEALLOCATED priority order.
func promoteAllocationStatus(existing, incoming alloytypes.AllocationStatus) alloytypes.AllocationStatus {
	if allocationRank[incoming] > allocationRank[existing] {
		return incoming
	}
	return existing
}
