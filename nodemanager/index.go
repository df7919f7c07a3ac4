package nodemanager

import "github.com/alloyai/alloy-nodemanager/alloytypes"

// indexModels walks an AlloyModelsResponse's four modality lists and
// produces a deduplicated model_id -> AlloyModel map plus the set of
// modality lists each model_id appeared under. First occurrence wins for
// every field except capabilities: if the first occurrence lacked
// capabilities but a later one has them, they're copied in. Every
// returned model is cloned so later mutation (e.g. in aggregation) never
// aliases the caller's response.
func indexModels(resp alloytypes.AlloyModelsResponse) (map[string]alloytypes.AlloyModel, map[string]alloytypes.ModalitySet) {
	models := make(map[string]alloytypes.AlloyModel)
	categories := make(map[string]alloytypes.ModalitySet)

	for _, group := range resp.ByModality() {
		for _, m := range group.Models {
			existing, seen := models[m.ModelID]
			if !seen {
				models[m.ModelID] = m.Clone()
			} else if len(existing.Capabilities) == 0 && len(m.Capabilities) > 0 {
				existing.Capabilities = m.Clone().Capabilities
				models[m.ModelID] = existing
			}

			set, ok := categories[m.ModelID]
			if !ok {
				set = alloytypes.NewModalitySet()
				categories[m.ModelID] = set
			}
			set.Add(group.Modality)
		}
	}
	return models, categories
}
