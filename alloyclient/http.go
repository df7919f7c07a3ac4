package alloyclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/alloyai/alloy-nodemanager/alloytypes"
)

// dedupWindow is how long a /models response is served from the
// in-memory dedup cache before a fresh round trip is required. It exists
// purely to collapse bursts of concurrent refresh calls against the same
// node (see SPEC_FULL.md's DOMAIN STACK section) within one brief
// window; any call outside the window hits the network as normal.
const dedupWindow = 250 * time.Millisecond

// HTTPClient is the default Client implementation: one backend reached
// over HTTP/JSON, with Server-Sent-Events framing for streaming image
// calls.
type HTTPClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client

	modelsDedup *lru.LRU[string, alloytypes.AlloyModelsResponse]
}

// New builds an HTTPClient for one node. timeout is the manager-wide
// default; individual calls may override it via Timeout.
func New(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		httpClient: &http.Client{},
		modelsDedup: lru.NewLRU[string, alloytypes.AlloyModelsResponse](
			4, nil, dedupWindow,
		),
	}
}

func (c *HTTPClient) effectiveTimeout(override *Timeout) time.Duration {
	if override != nil {
		return time.Duration(override.Seconds * float64(time.Second))
	}
	return c.timeout
}

// Models fetches the node's current inventory.
func (c *HTTPClient) Models(ctx context.Context, timeoutOverride *Timeout) (alloytypes.AlloyModelsResponse, error) {
	const dedupKey = "models"
	if cached, ok := c.modelsDedup.Get(dedupKey); ok {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.effectiveTimeout(timeoutOverride))
	defer cancel()

	resp, err := c.doGET(ctx, "/models")
	if err != nil {
		return alloytypes.AlloyModelsResponse{}, err
	}
	defer resp.Body.Close()

	var out alloytypes.AlloyModelsResponse
	if err := readJSON(resp, &out); err != nil {
		return alloytypes.AlloyModelsResponse{}, err
	}
	c.modelsDedup.Add(dedupKey, out)
	return out, nil
}

// Image issues an image generation call. On stream=true it returns an
// EventStream; otherwise it returns an ImageResult.
func (c *HTTPClient) Image(ctx context.Context, req ImageRequest) (any, error) {
	payload := map[string]any{
		"model_id": req.ModelID,
		"prompt":   req.Prompt,
		"stream":   req.Stream,
	}
	for k, v := range req.Params {
		payload[k] = v
	}

	if req.Stream {
		resp, err := c.doPOST(ctx, "/image", payload, true, req.Timeout)
		if err != nil {
			return nil, err
		}
		return newSSEStream(resp, req.DecodeImages), nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.effectiveTimeout(req.Timeout))
	defer cancel()
	resp, err := c.doPOST(timeoutCtx, "/image", payload, false, req.Timeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := readJSON(resp, &out); err != nil {
		return nil, err
	}
	return maybeDecodeImages(out, req.DecodeImages), nil
}

// Chat issues a non-streaming chat completion.
func (c *HTTPClient) Chat(ctx context.Context, req ChatRequest) (alloytypes.ChatResponse, error) {
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
	}
	if req.Think.IsSet() {
		payload["think"] = req.Think
	}
	if req.Tools != nil {
		payload["tools"] = req.Tools
	}
	if req.Options != nil {
		payload["options"] = req.Options
	}
	if req.Format != nil {
		payload["format"] = req.Format
	}
	if req.KeepAlive.IsSet() {
		payload["keep_alive"] = req.KeepAlive
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.doPOST(ctx, "/chat", payload, false, nil)
	if err != nil {
		return alloytypes.ChatResponse{}, err
	}
	defer resp.Body.Close()

	var out alloytypes.ChatResponse
	if err := readJSON(resp, &out); err != nil {
		return alloytypes.ChatResponse{}, err
	}
	return out, nil
}

// Audio issues an audio synthesis call (stream is always false: the
// dispatcher rejects stream=true before reaching here).
func (c *HTTPClient) Audio(ctx context.Context, req AudioRequest) (AudioResult, error) {
	payload := map[string]any{
		"model_id": req.ModelID,
		"text":     req.Text,
		"stream":   false,
	}
	if req.Language != nil {
		payload["language"] = req.Language
	}
	if req.Speaker != nil {
		payload["speaker"] = req.Speaker
	}
	if req.Instruct != nil {
		payload["instruct"] = req.Instruct
	}
	if req.RefAudio != nil {
		payload["ref_audio"] = req.RefAudio
	}
	if req.RefText != nil {
		payload["ref_text"] = req.RefText
	}
	if req.KeepAlive.IsSet() {
		payload["keep_alive"] = req.KeepAlive
	}

	ctx, cancel := context.WithTimeout(ctx, c.effectiveTimeout(req.Timeout))
	defer cancel()
	resp, err := c.doPOST(ctx, "/audio", payload, false, req.Timeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := readJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) doGET(ctx context.Context, path string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	return c.do(httpReq)
}

func (c *HTTPClient) doPOST(ctx context.Context, path string, payload map[string]any, stream bool, _ *Timeout) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("encoding request body: %s", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	return c.do(httpReq)
}

func (c *HTTPClient) do(httpReq *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		message := string(body)
		if message == "" {
			message = resp.Status
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: message, Body: string(body)}
	}
	return resp, nil
}

func readJSON(resp *http.Response, out any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Message: fmt.Sprintf("reading response body: %s", err)}
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Message: fmt.Sprintf("decoding response body: %s", err), Body: string(raw)}
	}
	return nil
}

func maybeDecodeImages(data map[string]any, decode bool) map[string]any {
	if !decode {
		return data
	}
	images, ok := data["images"].([]any)
	if !ok {
		return data
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	decoded := make([][]byte, 0, len(images))
	for _, item := range images {
		s, ok := item.(string)
		if !ok {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			continue
		}
		decoded = append(decoded, raw)
	}
	out["images"] = decoded
	return out
}

// sseStream implements EventStream over a bufio.Scanner on the response
// body, framing "event:"/"data:" lines into Events exactly like the
// reference single-node client's SSE parser.
type sseStream struct {
	resp         *http.Response
	scanner      *bufio.Scanner
	decodeImages bool
	closed       bool
}

func newSSEStream(resp *http.Response, decodeImages bool) *sseStream {
	return &sseStream{
		resp:         resp,
		scanner:      bufio.NewScanner(resp.Body),
		decodeImages: decodeImages,
	}
}

func (s *sseStream) Next(ctx context.Context) (Event, error) {
	var event Event
	haveAny := false

	for s.scanner.Scan() {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		default:
		}

		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			if haveAny {
				return s.decorate(event), nil
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			var payload map[string]any
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return Event{}, &Error{Message: fmt.Sprintf("decoding SSE payload: %s", err)}
			}
			event.Payload = payload
			haveAny = true
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			haveAny = true
		}
	}
	if err := s.scanner.Err(); err != nil {
		return Event{}, &Error{Message: fmt.Sprintf("reading SSE stream: %s", err)}
	}
	if haveAny {
		return s.decorate(event), nil
	}
	return Event{}, io.EOF
}

func (s *sseStream) decorate(event Event) Event {
	if s.decodeImages && event.Payload != nil {
		if images, ok := event.Payload["images"].([]any); ok {
			decorated := make(map[string]any, len(event.Payload))
			for k, v := range event.Payload {
				decorated[k] = v
			}
			decoded := make([][]byte, 0, len(images))
			for _, item := range images {
				if s, ok := item.(string); ok {
					if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
						decoded = append(decoded, raw)
					}
				}
			}
			decorated["images"] = decoded
			event.Payload = decorated
		}
	}
	return event
}

func (s *sseStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.resp.Body.Close()
}

var _ EventStream = (*sseStream)(nil)
