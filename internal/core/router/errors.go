package router

import (
	"context"
	"errors"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/mohammed-shakir/opendata-map/internal/core/config"
	"github.com/mohammed-shakir/opendata-map/internal/core/upstream"
	"github.com/mohammed-shakir/opendata-map/internal/dataset"
	"github.com/mohammed-shakir/opendata-map/internal/recommend"
	"github.com/mohammed-shakir/opendata-map/internal/schema"
	"github.com/mohammed-shakir/opendata-map/internal/years"
)

// requestError marks a malformed request parameter.
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

// statusFor maps pipeline errors to HTTP status codes. Validation failures
// here come from upstream data, so they are a bad gateway; request bodies are
// validated by their handlers.
func statusFor(err error) int {
	var (
		reqErr *requestError
		cfgErr *config.ConfigurationError
		apiErr *upstream.APIError
		valErr *schema.ValidationError
		incErr *recommend.IncompleteResponseError
	)
	switch {
	case errors.Is(err, dataset.ErrUnknown):
		return http.StatusNotFound
	case errors.As(err, &reqErr), errors.Is(err, years.ErrInvalidYear):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr), errors.As(err, &valErr), errors.As(err, &incErr),
		errors.Is(err, recommend.ErrEmptyCompletion):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.failWith(w, r, statusFor(err), err)
}

func (a *api) failWith(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", code, "err", err)
	} else {
		a.logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		b = []byte(`{"error":"encode response"}`)
	}
	writeRaw(w, code, "application/json", b)
}

func writeRaw(w http.ResponseWriter, code int, contentType string, b []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	_, _ = w.Write(b)
}
