package nodemanager

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/alloyai/alloy-nodemanager/alloyclient"
)

// managedStream wraps an alloyclient.EventStream so the in-flight
// counters it was opened under release exactly once, on whichever of
// {exhaustion, abandonment, error} happens first. Close is idempotent,
// matching the EventStream contract.
type managedStream struct {
	inner   alloyclient.EventStream
	release sync.Once

	m          *Manager
	node       *nodeState
	modelID    string
	dispatchID string
}

func (m *Manager) wrapStream(ctx context.Context, inner alloyclient.EventStream, node *nodeState, modelID, dispatchID string) *managedStream {
	return &managedStream{inner: inner, m: m, node: node, modelID: modelID, dispatchID: dispatchID}
}

// Next advances the underlying stream. On io.EOF-equivalent exhaustion
// or any error it releases the in-flight counters before returning, so
// a caller that stops calling Next after the terminal event still gets
// exactly-once release without needing to call Close.
func (s *managedStream) Next(ctx context.Context) (alloyclient.Event, error) {
	event, err := s.inner.Next(ctx)
	if err != nil {
		// io.EOF is normal exhaustion, so the dispatch is released as a success.
		releaseErr := err
		if errors.Is(err, io.EOF) {
			releaseErr = nil
		}
		s.doRelease(ctx, releaseErr)
	}
	return event, err
}

// Close releases the in-flight counters if Next never reached a
// terminal error (the abandonment case) and closes the underlying
// stream. Safe to call multiple times, and safe to call after Next has
// already returned a terminal error.
func (s *managedStream) Close() error {
	s.doRelease(context.Background(), nil)
	return s.inner.Close()
}

func (s *managedStream) doRelease(ctx context.Context, err error) {
	s.release.Do(func() {
		s.m.endDispatch(ctx, s.node, s.modelID, "image_stream", s.dispatchID, err)
	})
}
