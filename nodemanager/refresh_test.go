package nodemanager

import (
	"context"
	"errors"
	"testing"

	"github.com/alloyai/alloy-nodemanager/alloytypes"
)

func TestRefreshNodesAppliesSuccessAndError(t *testing.T) {
	good := &fakeClient{modelsResp: modelResp("qwen-image", true, 0, true, alloytypes.AllocationAllocated)}
	bad := &fakeClient{modelsErr: errors.New("unreachable")}

	n0 := newNodeState("node0", good, 1.0)
	n1 := newNodeState("node1", bad, 1.0)
	m := &Manager{nodes: []*nodeState{n0, n1}}

	errs := m.refreshNodes(context.Background(), nil, nil)
	if len(errs) != 1 {
		t.Fatalf("expected exactly 1 error, got %d: %v", len(errs), errs)
	}
	if msg, ok := errs["node1"]; !ok || msg == "" {
		t.Errorf("expected node1 to report an error, got %v", errs)
	}

	if !n0.isModelSupported("qwen-image") {
		t.Errorf("node0 should have applied its successful refresh")
	}
	if n1.lastRefreshError == "" {
		t.Errorf("node1 should have recorded its refresh error")
	}
}

func TestRefreshNodesSelectsNamedSubset(t *testing.T) {
	n0 := newNodeState("node0", &fakeClient{modelsResp: modelResp("m", true, 0, true, alloytypes.AllocationAllocated)}, 1.0)
	n1 := newNodeState("node1", &fakeClient{modelsResp: modelResp("m", true, 0, true, alloytypes.AllocationAllocated)}, 1.0)
	m := &Manager{nodes: []*nodeState{n0, n1}}

	errs := m.refreshNodes(context.Background(), nil, []string{"node1"})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if n0.lastRefreshTS.IsZero() == false {
		t.Errorf("node0 should not have been refreshed")
	}
	if n1.lastRefreshTS.IsZero() {
		t.Errorf("node1 should have been refreshed")
	}
}

func TestRefreshNodesEmptyTargetsIsNoop(t *testing.T) {
	m := &Manager{nodes: nil}
	errs := m.refreshNodes(context.Background(), nil, nil)
	if errs != nil {
		t.Errorf("expected nil error map for empty node set, got %v", errs)
	}
}

func TestRefreshNodesUnknownNameIgnored(t *testing.T) {
	c := &fakeClient{modelsResp: modelResp("m", true, 0, true, alloytypes.AllocationAllocated)}
	n0 := newNodeState("node0", c, 1.0)
	m := &Manager{nodes: []*nodeState{n0}}

	errs := m.refreshNodes(context.Background(), nil, []string{"does-not-exist"})
	if errs != nil {
		t.Errorf("expected nil error map, got %v", errs)
	}
	if c.calls() != 0 {
		t.Errorf("expected no refresh call for an unknown target name, got %d", c.calls())
	}
}
