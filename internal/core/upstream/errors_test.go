package upstream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func resp(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestFromResponse_MessageShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"socrata", `{"code":"query.compiler.malformed","error":true,"message":"No such column: foo"}`, "No such column: foo"},
		{"openai", `{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`, "Invalid API Key"},
		{"string error", `{"error":"rate limited"}`, "rate limited"},
		{"plain text", "  Bad Gateway\n", "Bad Gateway"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromResponse("socrata", resp(400, tc.body))
			if got.Message != tc.want {
				t.Fatalf("message=%q want %q", got.Message, tc.want)
			}
			if got.Status != 400 || got.Upstream != "socrata" {
				t.Fatalf("unexpected error fields: %+v", got)
			}
		})
	}
}

func TestAPIError_WrapsAndTemporary(t *testing.T) {
	var err error = fmt.Errorf("fetch page 2: %w", &APIError{Upstream: "socrata", Status: 503, Message: "busy"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("errors.As failed for %v", err)
	}
	if !apiErr.Temporary() {
		t.Fatalf("503 should be temporary")
	}
	if (&APIError{Status: 404}).Temporary() {
		t.Fatalf("404 should not be temporary")
	}
	if got := err.Error(); got != "fetch page 2: socrata: status 503: busy" {
		t.Fatalf("Error()=%q", got)
	}
}
