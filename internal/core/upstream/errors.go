// Package upstream describes failures reported by third-party HTTP services.
package upstream

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
)

// APIError is a non-2xx response from an upstream service.
type APIError struct {
	Upstream string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Upstream, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Upstream, e.Status, e.Message)
}

// Temporary reports whether retrying the same request could succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

const maxErrorBody = 8 << 10

// FromResponse builds an APIError from resp, reading at most 8KiB of the body.
// The message comes from the JSON body when it carries one, else the raw text.
func FromResponse(name string, resp *http.Response) *APIError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Upstream: name,
		Status:   resp.StatusCode,
		Message:  messageOf(b),
	}
}

// messageOf understands {"message": ...} (Socrata), {"error": {"message": ...}}
// (OpenAI-compatible APIs) and {"error": "..."}.
func messageOf(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := sonic.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		switch v := payload.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if m, ok := v["message"].(string); ok && m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(body))
}
