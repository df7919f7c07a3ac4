package nodemanager

import (
	"fmt"
	"strings"
)

// ConfigError is returned from New when the construction arguments
// themselves are invalid (empty node list, non-positive MaxNodesToQuery).
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("nodemanager: invalid configuration: %s", e.Reason)
}

// InitError is returned from New when the initial refresh leaves the
// manager unusable: either every node's model map is empty, or
// StrictInit is set and at least one node failed to refresh.
type InitError struct {
	// NodeErrors maps node name to the underlying cause observed during
	// the initial refresh. May be empty if the failure was the
	// all-nodes-empty case rather than StrictInit. These are wrapped:
	// errors.Is/errors.As against a per-node cause works through
	// InitError via Unwrap.
	NodeErrors map[string]error
	Reason     string
}

func (e *InitError) Error() string {
	if len(e.NodeErrors) == 0 {
		return fmt.Sprintf("nodemanager: %s", e.Reason)
	}
	lines := make([]string, 0, len(e.NodeErrors))
	for name, err := range e.NodeErrors {
		lines = append(lines, fmt.Sprintf("%s: %s", name, err.Error()))
	}
	return fmt.Sprintf("nodemanager: %s: %s", e.Reason, strings.Join(lines, "; "))
}

// Unwrap exposes every per-node cause so errors.Is/errors.As can match
// against whatever the failing node's client returned (e.g. an
// *alloyclient.Error for a backend-reported failure), not just this
// error's own formatted message.
func (e *InitError) Unwrap() []error {
	causes := make([]error, 0, len(e.NodeErrors))
	for _, err := range e.NodeErrors {
		causes = append(causes, err)
	}
	return causes
}

// NoCandidateNode is returned when no node's cached inventory lists the
// requested model as supported, even after a forced refresh.
type NoCandidateNode struct {
	ModelID string
}

func (e *NoCandidateNode) Error() string {
	return fmt.Sprintf("nodemanager: no candidate node supports model %q", e.ModelID)
}

// StreamingUnsupported is returned when the caller requests stream=true
// on an operation that the dispatcher never allows to stream.
type StreamingUnsupported struct {
	Operation string
}

func (e *StreamingUnsupported) Error() string {
	return fmt.Sprintf("nodemanager: streaming is not supported for %s", e.Operation)
}
