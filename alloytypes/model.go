package alloytypes

// ModelCapability describes one input/output modality combination a
// model supports, optionally named (e.g. "text-to-image" vs "inpaint").
type ModelCapability struct {
	Inputs  ModalitySet `json:"inputs"`
	Outputs ModalitySet `json:"outputs"`
	Name    *string     `json:"name,omitempty"`
}

// Clone returns a deep copy so mutations on the result never alias caller state.
func (c ModelCapability) Clone() ModelCapability {
	out := ModelCapability{
		Inputs:  c.Inputs.Clone(),
		Outputs: c.Outputs.Clone(),
	}
	if c.Name != nil {
		name := *c.Name
		out.Name = &name
	}
	return out
}

// AlloyModel is a single model as reported by a node's inventory.
type AlloyModel struct {
	ModelID                    string            `json:"model_id"`
	ActiveRequests             int               `json:"active_requests"`
	IsSupported                bool              `json:"is_supported"`
	SupportsConcurrentRequests bool              `json:"supports_concurrent_requests,omitempty"`
	Capabilities               []ModelCapability `json:"capabilities"`
	AllocationStatus           AllocationStatus  `json:"allocation_status"`
}

// Clone returns a deep copy of m so callers can mutate the result (merge
// fields into it, attach it to a different node's snapshot, etc.)
// without aliasing the original's slices.
func (m AlloyModel) Clone() AlloyModel {
	out := m
	if m.Capabilities != nil {
		out.Capabilities = make([]ModelCapability, len(m.Capabilities))
		for i, c := range m.Capabilities {
			out.Capabilities[i] = c.Clone()
		}
	}
	return out
}

// AlloyModelsResponse is the /models wire shape: four lists of models
// keyed by the output modality a node chose to group them under. A model
// may legitimately appear in more than one list.
type AlloyModelsResponse struct {
	Image []AlloyModel `json:"image"`
	Audio []AlloyModel `json:"audio"`
	Video []AlloyModel `json:"video"`
	Text  []AlloyModel `json:"text"`
}

// ByModality returns the four lists keyed by the modality they were
// reported under, in a fixed iteration order (image, audio, video, text)
// so callers that range over it get deterministic behavior.
func (r AlloyModelsResponse) ByModality() []struct {
	Modality Modality
	Models   []AlloyModel
} {
	return []struct {
		Modality Modality
		Models   []AlloyModel
	}{
		{ModalityImage, r.Image},
		{ModalityAudio, r.Audio},
		{ModalityVideo, r.Video},
		{ModalityText, r.Text},
	}
}
