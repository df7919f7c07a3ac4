// Package alloyclient is the single-node collaborator the node manager
// dispatches to: URL construction, JSON (de)serialization, Server-Sent
// Events framing, and HTTP error mapping for one inference backend. The
// node manager core treats it only through the Client interface.
package alloyclient

import (
	"context"
	"io"

	"github.com/alloyai/alloy-nodemanager/alloytypes"
)

// Event is one item of a streamed image/audio/chat response.
type Event struct {
	Event   string         `json:"event,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EventStream is a lazy sequence of streamed events with mandatory scoped
// cleanup. Callers MUST call Close once they stop consuming, whether
// they drained it, abandoned it early, or hit an error — Next itself
// returns io.EOF on natural exhaustion but does not release any
// underlying connection; that is Close's job, and Close is idempotent.
type EventStream interface {
	// Next blocks for the next event. It returns io.EOF when the stream
	// is exhausted.
	Next(ctx context.Context) (Event, error)
	Close() error
}

// ImageResult is returned by Image for a non-streaming call.
type ImageResult = map[string]any

// AudioResult is returned by Audio.
type AudioResult = map[string]any

// Client is the per-node operations the node manager consumes. A
// concrete HTTP implementation is provided by New; tests substitute
// fakes implementing this interface directly.
type Client interface {
	Models(ctx context.Context, timeoutOverride *Timeout) (alloytypes.AlloyModelsResponse, error)

	// Image returns either a single ImageResult (stream=false) or an
	// EventStream (stream=true); callers type-assert on the result.
	Image(ctx context.Context, req ImageRequest) (any, error)

	// Chat never streams (stream=true is rejected before any call per
	// the dispatcher's StreamingUnsupported policy), so it only ever
	// returns a ChatResponse.
	Chat(ctx context.Context, req ChatRequest) (alloytypes.ChatResponse, error)

	Audio(ctx context.Context, req AudioRequest) (AudioResult, error)
}

// Timeout overrides a client's configured default for a single call.
type Timeout struct {
	Seconds float64
}

// ImageRequest carries every field the /image endpoint accepts.
type ImageRequest struct {
	ModelID      string
	Prompt       any
	Stream       bool
	DecodeImages bool
	Timeout      *Timeout
	Params       map[string]any
}

// ChatRequest carries every field the /chat endpoint accepts. It has no
// Stream field: HTTPClient.Chat always sends stream=false, and the
// dispatcher rejects streaming chat before selecting a node.
type ChatRequest struct {
	Model     string
	Messages  []alloytypes.Message
	Think     alloytypes.Think
	Tools     []alloytypes.Tool
	Options   map[string]any
	Format    alloytypes.JSONSchemaValue
	KeepAlive alloytypes.KeepAlive
}

// AudioRequest carries every field the /audio endpoint accepts.
type AudioRequest struct {
	ModelID   string
	Text      any
	Language  any
	Speaker   any
	Instruct  any
	RefAudio  any
	RefText   any
	Stream    bool
	KeepAlive alloytypes.KeepAlive
	Timeout   *Timeout
}

// closerFunc adapts a plain function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var _ io.Closer = closerFunc(nil)
