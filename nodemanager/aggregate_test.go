package nodemanager

import (
	"testing"
	"time"

	"github.com/alloyai/alloy-nodemanager/alloytypes"
)

func TestCombinedModelsResponseAggregation(t *testing.T) {
	// S6: node0 active=1 allocated non-concurrent; node1 active=2
	// deallocated concurrent. Combined: active=3, allocated (promoted),
	// concurrent=true (OR), placed under image.
	node0 := newNodeState("node0", &fakeClient{}, 1.0)
	node0.applyRefresh(modelResp("qwen-image", true, 1, false, alloytypes.AllocationAllocated), time.Now())

	node1 := newNodeState("node1", &fakeClient{}, 1.0)
	node1.applyRefresh(modelResp("qwen-image", true, 2, true, alloytypes.AllocationDeallocated), time.Now())

	m := &Manager{nodes: []*nodeState{node0, node1}}

	combined := m.combinedModelsResponse()
	if len(combined.Image) != 1 {
		t.Fatalf("expected one model in the image bucket, got %d", len(combined.Image))
	}
	got := combined.Image[0]
	if got.ActiveRequests != 3 {
		t.Errorf("ActiveRequests = %d, want 3", got.ActiveRequests)
	}
	if got.AllocationStatus != alloytypes.AllocationAllocated {
		t.Errorf("AllocationStatus = %v, want allocated", got.AllocationStatus)
	}
	if !got.SupportsConcurrentRequests {
		t.Errorf("SupportsConcurrentRequests = false, want true")
	}
	if len(combined.Audio) != 0 || len(combined.Video) != 0 || len(combined.Text) != 0 {
		t.Errorf("expected no models in other modality buckets")
	}
}

func TestPromoteAllocationStatusNeverDemotes(t *testing.T) {
	cases := []struct {
		existing, incoming, want alloytypes.AllocationStatus
	}{
		{alloytypes.AllocationAllocated, alloytypes.AllocationDeallocated, alloytypes.AllocationAllocated},
		{alloytypes.AllocationDeallocated, alloytypes.AllocationQueue, alloytypes.AllocationQueue},
		{alloytypes.AllocationQueue, alloytypes.AllocationAllocated, alloytypes.AllocationAllocated},
		{alloytypes.AllocationDeallocated, alloytypes.AllocationDeallocated, alloytypes.AllocationDeallocated},
	}
	for _, c := range cases {
		if got := promoteAllocationStatus(c.existing, c.incoming); got != c.want {
			t.Errorf("promoteAllocationStatus(%v, %v) = %v, want %v", c.existing, c.incoming, got, c.want)
		}
	}
}

func TestCombinedModelsResponseSortsByModelID(t *testing.T) {
	node0 := newNodeState("node0", &fakeClient{}, 1.0)
	resp := alloytypes.AlloyModelsResponse{
		Image: []alloytypes.AlloyModel{
			{ModelID: "zeta", IsSupported: true, AllocationStatus: alloytypes.AllocationAllocated},
			{ModelID: "alpha", IsSupported: true, AllocationStatus: alloytypes.AllocationAllocated},
		},
	}
	node0.applyRefresh(resp, time.Now())
	m := &Manager{nodes: []*nodeState{node0}}

	combined := m.combinedModelsResponse()
	if len(combined.Image) != 2 {
		t.Fatalf("expected 2 models, got %d", len(combined.Image))
	}
	if combined.Image[0].ModelID != "alpha" || combined.Image[1].ModelID != "zeta" {
		t.Errorf("expected sorted order [alpha, zeta], got [%s, %s]", combined.Image[0].ModelID, combined.Image[1].ModelID)
	}
}
