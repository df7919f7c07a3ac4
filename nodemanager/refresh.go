package nodemanager

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alloyai/alloy-nodemanager/alloyclient"
)

// refreshNodes dispatches one concurrent inventory fetch per target node
// (all nodes if names is empty, else the subset whose names match —
// unknown names are silently ignored) and waits for all of them to
// complete. Concurrency is bounded by min(16, max(1, len(targets))),
// mirroring the reference implementation's ThreadPoolExecutor pool size.
// It returns a map of node name to error message for every node that
// failed to refresh (spec.md §4.3's `mapping<node_name, error_message>`
// contract). Nodes that succeed are not present in the map. Callers that
// need the underlying error values rather than their formatted messages
// (e.g. to build a wrapped InitError) should call refreshNodesDetailed
// directly.
//
// This never holds m.mu across the network calls: it takes the lock
// once to snapshot the target *nodeState pointers and once per node, at
// completion, to apply the result.
func (m *Manager) refreshNodes(ctx context.Context, timeoutOverride *alloyclient.Timeout, names []string) map[string]string {
	detailed := m.refreshNodesDetailed(ctx, timeoutOverride, names)
	if len(detailed) == 0 {
		return nil
	}
	errs := make(map[string]string, len(detailed))
	for name, err := range detailed {
		errs[name] = err.Error()
	}
	return errs
}

// refreshNodesDetailed is refreshNodes with the original per-node error
// values preserved, so a caller can wrap them (e.g. InitError.Unwrap)
// instead of only keeping their formatted text.
func (m *Manager) refreshNodesDetailed(ctx context.Context, timeoutOverride *alloyclient.Timeout, names []string) map[string]error {
	targets := m.selectTargets(names)
	if len(targets) == 0 {
		return nil
	}

	concurrency := len(targets)
	if concurrency > 16 {
		concurrency = 16
	}
	if concurrency < 1 {
		concurrency = 1
	}

	errs := make(map[string]error)
	var errsMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()

			start := time.Now()
			resp, err := target.client.Models(gctx, timeoutOverride)
			elapsed := time.Since(start)

			m.mu.Lock()
			if err != nil {
				target.applyRefreshError(err.Error())
			} else {
				target.applyRefresh(resp, time.Now())
			}
			m.mu.Unlock()

			if m.metrics != nil {
				m.metrics.RecordRefresh(ctx, target.name, elapsed, err)
			}

			if err != nil {
				errsMu.Lock()
				errs[target.name] = err
				errsMu.Unlock()
				if m.logger != nil {
					m.logger.Warn("node refresh failed", "node", target.name, "error", err.Error())
				}
			}
			return nil
		})
	}
	_ = g.Wait() // errors are collected per-node above; the group itself never fails fast

	return errs
}

// selectTargets snapshots the *nodeState pointers to refresh. Empty
// names means "all nodes"; unknown names are ignored.
func (m *Manager) selectTargets(names []string) []*nodeState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(names) == 0 {
		targets := make([]*nodeState, len(m.nodes))
		copy(targets, m.nodes)
		return targets
	}

	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	var targets []*nodeState
	for _, n := range m.nodes {
		if _, ok := wanted[n.name]; ok {
			targets = append(targets, n)
		}
	}
	return targets
}
