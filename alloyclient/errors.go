package alloyclient

import "fmt"

// Error is returned for any backend HTTP failure: a 4xx/5xx status, a
// connection failure, or a malformed response body. The node manager
// passes it through to callers unchanged (spec: BackendError pass-through).
type Error struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("alloyclient: %s", e.Message)
	}
	return fmt.Sprintf("alloyclient: HTTP %d: %s", e.StatusCode, e.Message)
}
