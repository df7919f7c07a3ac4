package nodemanager

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alloyai/alloy-nodemanager/alloyclient"
	"github.com/alloyai/alloy-nodemanager/alloytypes"
	"github.com/alloyai/alloy-nodemanager/internal/logging"
	"github.com/alloyai/alloy-nodemanager/internal/metrics"
)

// Manager is the public façade: it implements the same operations as a
// single alloyclient.Client, routing each call to whichever node in the
// fleet scores best for the requested model. A Manager is safe for
// concurrent use by multiple goroutines.
type Manager struct {
	mu    sync.Mutex
	nodes []*nodeState

	timeout         time.Duration
	mode            Mode
	maxNodesToQuery int

	logger  *slog.Logger
	metrics *metrics.Recorder
}

// New constructs a Manager from cfg. It issues an initial full refresh
// before returning. Construction fails (spec.md §4.1/§7) if:
//   - cfg.Nodes is empty, or MaxNodesToQuery <= 0 (ConfigError)
//   - cfg.StrictInit is set and any node errored during the initial
//     refresh (InitError)
//   - every node's cached model map is empty after the initial refresh,
//     regardless of StrictInit (InitError) — this asymmetry is
//     intentional; see spec.md §9's open question.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	if len(cfg.Nodes) == 0 {
		return nil, &ConfigError{Reason: "at least one node is required"}
	}
	maxNodesToQuery := cfg.MaxNodesToQuery
	if maxNodesToQuery <= 0 {
		return nil, &ConfigError{Reason: "max_nodes_to_query must be positive"}
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ControlledQuerying
	}
	if !mode.valid() {
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown mode %q", mode)}
	}

	timeoutS := cfg.TimeoutS
	if timeoutS == 0 {
		timeoutS = DefaultConfig().TimeoutS
	}
	timeout := time.Duration(timeoutS * float64(time.Second))

	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(logging.Config{Writer: io.Discard})
	}

	m := &Manager{
		timeout:         timeout,
		mode:            mode,
		maxNodesToQuery: maxNodesToQuery,
		logger:          logger,
		metrics:         cfg.Metrics,
	}

	for i, nc := range cfg.Nodes {
		name := nc.Name
		if name == "" {
			name = fmt.Sprintf("node-%d", i)
		}
		weight := nc.Weight
		if weight == 0 {
			weight = 1.0
		}

		var client alloyclient.Client
		if cfg.ClientFactory != nil {
			client = cfg.ClientFactory(nc, timeout)
		} else {
			client = alloyclient.New(nc.BaseURL, timeout)
		}
		m.nodes = append(m.nodes, newNodeState(name, client, weight))
	}

	errs := m.refreshNodesDetailed(ctx, nil, nil)
	if cfg.StrictInit && len(errs) > 0 {
		return nil, &InitError{NodeErrors: errs, Reason: "failed to initialize node manager"}
	}

	m.mu.Lock()
	allEmpty := true
	for _, n := range m.nodes {
		if len(n.models) > 0 {
			allEmpty = false
			break
		}
	}
	m.mu.Unlock()
	if allEmpty {
		return nil, &InitError{Reason: "no nodes provided a valid /models response"}
	}

	return m, nil
}

// RefreshNodes force-refreshes the named nodes (all nodes if names is
// empty) and returns a map of node name to error message for every node
// that failed. See spec.md §4.3.
func (m *Manager) RefreshNodes(ctx context.Context, timeoutS *float64, names []string) map[string]string {
	var override *alloyclient.Timeout
	if timeoutS != nil {
		override = &alloyclient.Timeout{Seconds: *timeoutS}
	}
	return m.refreshNodes(ctx, override, names)
}

// Models refreshes every node and returns the aggregated inventory.
// Unlike the routed operations, it tolerates per-node refresh errors:
// an errored node simply contributes its last cached snapshot (or
// nothing, if it has never refreshed successfully).
func (m *Manager) Models(ctx context.Context, timeoutS *float64) alloytypes.AlloyModelsResponse {
	m.RefreshNodes(ctx, timeoutS, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.combinedModelsResponse()
}

// Image routes an image generation call to the best-scoring node for
// ImageRequest.ModelID. On req.Stream it returns an alloyclient.EventStream
// wrapped so in-flight counters release exactly once on exhaustion,
// abandonment, or error.
func (m *Manager) Image(ctx context.Context, req alloyclient.ImageRequest) (any, error) {
	node, err := m.selectNode(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}
	dispatchID := uuid.NewString()

	m.beginDispatch(ctx, node, req.ModelID, dispatchID)
	result, err := node.client.Image(ctx, req)
	if err != nil {
		m.endDispatch(ctx, node, req.ModelID, "image", dispatchID, err)
		return nil, err
	}

	if req.Stream {
		if stream, ok := result.(alloyclient.EventStream); ok {
			return m.wrapStream(ctx, stream, node, req.ModelID, dispatchID), nil
		}
	}

	m.endDispatch(ctx, node, req.ModelID, "image", dispatchID, nil)
	return result, nil
}

// Chat routes a chat completion call to the best-scoring node for
// ChatRequest.Model. Streaming chat is not supported at the dispatcher
// layer: stream=true returns *StreamingUnsupported before any node is
// selected. Image is the only operation that can stream.
func (m *Manager) Chat(ctx context.Context, req alloyclient.ChatRequest, stream bool) (alloytypes.ChatResponse, error) {
	if stream {
		return alloytypes.ChatResponse{}, &StreamingUnsupported{Operation: "chat"}
	}

	node, err := m.selectNode(ctx, req.Model)
	if err != nil {
		return alloytypes.ChatResponse{}, err
	}
	dispatchID := uuid.NewString()

	m.beginDispatch(ctx, node, req.Model, dispatchID)
	result, err := node.client.Chat(ctx, req)
	m.endDispatch(ctx, node, req.Model, "chat", dispatchID, err)
	return result, err
}

// Audio routes an audio synthesis call to the best-scoring node for
// AudioRequest.ModelID. Streaming audio is not supported at the
// dispatcher layer.
func (m *Manager) Audio(ctx context.Context, req alloyclient.AudioRequest) (alloyclient.AudioResult, error) {
	if req.Stream {
		return nil, &StreamingUnsupported{Operation: "audio"}
	}

	node, err := m.selectNode(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}
	dispatchID := uuid.NewString()

	m.beginDispatch(ctx, node, req.ModelID, dispatchID)
	result, err := node.client.Audio(ctx, req)
	m.endDispatch(ctx, node, req.ModelID, "audio", dispatchID, err)
	return result, err
}

// beginDispatch records the start of one dispatch: it raises the
// node's in-flight counters and, if a logger is configured, emits a
// debug line carrying dispatchID for correlation with the warning
// endDispatch logs when the dispatch fails.
func (m *Manager) beginDispatch(ctx context.Context, node *nodeState, modelID, dispatchID string) {
	m.mu.Lock()
	node.increment(modelID)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.AdjustInFlight(ctx, node.name, 1)
	}
	if m.logger != nil {
		m.logger.Debug("dispatch started", "node", node.name, "model_id", modelID, "dispatch_id", dispatchID)
	}
}

func (m *Manager) endDispatch(ctx context.Context, node *nodeState, modelID, operation, dispatchID string, err error) {
	m.mu.Lock()
	node.decrement(modelID)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.AdjustInFlight(ctx, node.name, -1)
		m.metrics.RecordDispatch(ctx, node.name, operation, err != nil)
	}
	if err != nil && m.logger != nil {
		m.logger.Warn("dispatch failed", "node", node.name, "model_id", modelID, "operation", operation, "dispatch_id", dispatchID, "error", err.Error())
	}
}
