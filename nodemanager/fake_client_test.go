package nodemanager

import (
	"context"
	"errors"
	"sync"

	"github.com/alloyai/alloy-nodemanager/alloyclient"
	"github.com/alloyai/alloy-nodemanager/alloytypes"
)

// fakeClient is a hand-rolled alloyclient.Client for tests. Each field
// controls one operation's behavior; an unset response field yields that
// type's zero value with a nil error.
type fakeClient struct {
	mu sync.Mutex

	modelsResp  alloytypes.AlloyModelsResponse
	modelsErr   error
	modelsCalls int

	imageResp any
	imageErr  error

	chatResp alloytypes.ChatResponse
	chatErr  error

	audioResp alloyclient.AudioResult
	audioErr  error
}

func (f *fakeClient) Models(ctx context.Context, timeoutOverride *alloyclient.Timeout) (alloytypes.AlloyModelsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modelsCalls++
	if f.modelsErr != nil {
		return alloytypes.AlloyModelsResponse{}, f.modelsErr
	}
	return f.modelsResp, nil
}

func (f *fakeClient) Image(ctx context.Context, req alloyclient.ImageRequest) (any, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return f.imageResp, nil
}

func (f *fakeClient) Chat(ctx context.Context, req alloyclient.ChatRequest) (alloytypes.ChatResponse, error) {
	return f.chatResp, f.chatErr
}

func (f *fakeClient) Audio(ctx context.Context, req alloyclient.AudioRequest) (alloyclient.AudioResult, error) {
	return f.audioResp, f.audioErr
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modelsCalls
}

// fakeStream is a scripted alloyclient.EventStream: it yields events[0],
// events[1], ... and then returns errAtEnd (io.EOF in the common case).
type fakeStream struct {
	mu      sync.Mutex
	events  []alloyclient.Event
	errAtEnd error
	idx     int
	closed  int
}

func (s *fakeStream) Next(ctx context.Context) (alloyclient.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.events) {
		return alloyclient.Event{}, s.errAtEnd
	}
	e := s.events[s.idx]
	s.idx++
	return e, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var errStreamExhausted = errors.New("stream exhausted")

func modelResp(modelID string, supported bool, active int, concurrent bool, status alloytypes.AllocationStatus) alloytypes.AlloyModelsResponse {
	m := alloytypes.AlloyModel{
		ModelID:                    modelID,
		ActiveRequests:             active,
		IsSupported:                supported,
		SupportsConcurrentRequests: concurrent,
		AllocationStatus:           status,
		Capabilities: []alloytypes.ModelCapability{
			{
				Inputs:  alloytypes.NewModalitySet(alloytypes.ModalityText),
				Outputs: alloytypes.NewModalitySet(alloytypes.ModalityImage),
			},
		},
	}
	return alloytypes.AlloyModelsResponse{Image: []alloytypes.AlloyModel{m}}
}
