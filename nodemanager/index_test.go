package nodemanager

import (
	"testing"

	"github.com/alloyai/alloy-nodemanager/alloytypes"
)

func TestIndexModelsDedupesFirstOccurrenceWins(t *testing.T) {
	resp := alloytypes.AlloyModelsResponse{
		Image: []alloytypes.AlloyModel{
			{ModelID: "qwen-any", ActiveRequests: 1, IsSupported: true},
		},
		Text: []alloytypes.AlloyModel{
			{ModelID: "qwen-any", ActiveRequests: 99, IsSupported: false},
		},
	}

	models, categories := indexModels(resp)
	if len(models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(models))
	}
	got := models["qwen-any"]
	if got.ActiveRequests != 1 || !got.IsSupported {
		t.Errorf("expected first occurrence's fields to win, got %+v", got)
	}

	set := categories["qwen-any"]
	if !set.Has(alloytypes.ModalityImage) || !set.Has(alloytypes.ModalityText) {
		t.Errorf("expected model tagged under both image and text, got %v", set)
	}
}

func TestIndexModelsCopiesInLaterCapabilities(t *testing.T) {
	resp := alloytypes.AlloyModelsResponse{
		Image: []alloytypes.AlloyModel{
			{ModelID: "qwen-any", IsSupported: true},
		},
		Video: []alloytypes.AlloyModel{
			{
				ModelID:      "qwen-any",
				IsSupported:  true,
				Capabilities: []alloytypes.ModelCapability{{Outputs: alloytypes.NewModalitySet(alloytypes.ModalityVideo)}},
			},
		},
	}

	models, _ := indexModels(resp)
	got := models["qwen-any"]
	if len(got.Capabilities) != 1 {
		t.Fatalf("expected the later capabilities to be copied in, got %+v", got.Capabilities)
	}
}

func TestIndexModelsClonesSoMutationDoesNotAliasInput(t *testing.T) {
	capability := alloytypes.ModelCapability{Outputs: alloytypes.NewModalitySet(alloytypes.ModalityImage)}
	resp := alloytypes.AlloyModelsResponse{
		Image: []alloytypes.AlloyModel{
			{ModelID: "qwen-any", IsSupported: true, Capabilities: []alloytypes.ModelCapability{capability}},
		},
	}

	models, _ := indexModels(resp)
	got := models["qwen-any"]
	got.Capabilities[0].Outputs.Add(alloytypes.ModalityVideo)

	if resp.Image[0].Capabilities[0].Outputs.Has(alloytypes.ModalityVideo) {
		t.Errorf("mutating the indexed copy must not alias the original response")
	}
}

func TestIndexModelsEmptyResponse(t *testing.T) {
	models, categories := indexModels(alloytypes.AlloyModelsResponse{})
	if len(models) != 0 || len(categories) != 0 {
		t.Errorf("expected empty maps for an empty response, got %d models, %d categories", len(models), len(categories))
	}
}
