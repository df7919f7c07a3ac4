package alloyclient

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"testing"
)

func fakeSSEResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestSSEStreamParsesEventAndDataLines(t *testing.T) {
	body := "event: received\ndata: {\"ok\":true}\n\nevent: done\ndata: {\"ok\":false}\n\n"
	stream := newSSEStream(fakeSSEResponse(body), false)

	first, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Event != "received" || first.Payload["ok"] != true {
		t.Errorf("unexpected first event: %+v", first)
	}

	second, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Event != "done" || second.Payload["ok"] != false {
		t.Errorf("unexpected second event: %+v", second)
	}

	if _, err := stream.Next(context.Background()); err != io.EOF {
		t.Fatalf("expected io.EOF at exhaustion, got %v", err)
	}
}

func TestSSEStreamDecodeImagesDecorate(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("pixel-bytes"))
	body := "data: {\"images\":[\"" + encoded + "\"]}\n\n"
	stream := newSSEStream(fakeSSEResponse(body), true)

	event, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	images, ok := event.Payload["images"].([][]byte)
	if !ok || len(images) != 1 {
		t.Fatalf("expected decoded [][]byte images, got %T: %v", event.Payload["images"], event.Payload["images"])
	}
	if string(images[0]) != "pixel-bytes" {
		t.Errorf("decoded image = %q, want pixel-bytes", images[0])
	}
}

func TestSSEStreamCloseIsIdempotent(t *testing.T) {
	stream := newSSEStream(fakeSSEResponse(""), false)
	if err := stream.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestErrorFormatting(t *testing.T) {
	withStatus := &Error{StatusCode: 503, Message: "overloaded"}
	if got := withStatus.Error(); got != "alloyclient: HTTP 503: overloaded" {
		t.Errorf("Error() = %q", got)
	}

	withoutStatus := &Error{Message: "connection refused"}
	if got := withoutStatus.Error(); got != "alloyclient: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}
