package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/opendata-map/internal/core/upstream"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const complete = `Here is my evaluation.

Current strengths:
- Large capacity of 120 MW
• Operational since 2019
1. Located in a high-demand zone

Areas for improvement:
- No storage component
- Limited community benefit reporting
- Aging turbines

Specific actionable recommendations:
1. Add 20 MWh of battery storage within 2 years
2. Publish annual community benefit reports
3. Repower turbines by 2030

Potential score impact:
- +10 ESG points from storage
- +5 points from reporting
- +8 points from repowering
`

type fakeCompleter struct {
	text string
	err  error
	got  Prompt
}

func (f *fakeCompleter) Complete(_ context.Context, p Prompt) (string, error) {
	f.got = p
	return f.text, f.err
}

func TestParse_AllSections(t *testing.T) {
	s, err := Parse(complete)
	require.NoError(t, err)
	assert.Equal(t, []string{"Large capacity of 120 MW", "Operational since 2019", "Located in a high-demand zone"}, s.Strengths)
	assert.Len(t, s.Improvements, 3)
	assert.Equal(t, "Add 20 MWh of battery storage within 2 years", s.Recommendations[0])
	assert.Equal(t, "+8 points from repowering", s.Impacts[2])
}

func TestParse_IgnoresNonBulletsAndTextBeforeHeaders(t *testing.T) {
	s, err := Parse("- stray bullet\n" + strings.Replace(complete, "- No storage component", "No storage component", 1))
	require.NoError(t, err)
	assert.NotContains(t, s.Strengths, "stray bullet")
	assert.Len(t, s.Improvements, 2)
}

func TestParse_HeaderWithinLineSwitchesSection(t *testing.T) {
	text := "**Current strengths:**\n- a\n## Areas for improvement:\n- b\nSpecific actionable recommendations:\n- c\nPotential score impact:\n- d\n"
	s, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, Sections{
		Strengths:       []string{"a"},
		Improvements:    []string{"b"},
		Recommendations: []string{"c"},
		Impacts:         []string{"d"},
	}, s)
}

func TestParse_MissingHeader(t *testing.T) {
	text := strings.Replace(complete, "Potential score impact:", "Impact:", 1)
	_, err := Parse(text)
	var inc *IncompleteResponseError
	require.True(t, errors.As(err, &inc))
	assert.Equal(t, []string{HeaderImpacts}, inc.Missing)
}

func TestRequester_BuildsPromptAndParses(t *testing.T) {
	fc := &fakeCompleter{text: complete}
	r := NewRequester(discard(), fc, Options{Temperature: DefaultTemperature})

	project := map[string]any{"project_name": "Wind Farm A", "bid_capacity_mw": 120}
	rec, err := r.Recommend(context.Background(), project)
	require.NoError(t, err)

	assert.Equal(t, complete, rec.Content)
	assert.Len(t, rec.Sections.Strengths, 3)
	assert.Equal(t, 0.5, fc.got.Temperature)
	assert.Equal(t, DefaultMaxTokens, fc.got.MaxTokens)
	assert.Contains(t, fc.got.System, "renewable energy projects and ESG scoring")
	assert.Contains(t, fc.got.User, "{\n  \"bid_capacity_mw\": 120,\n  \"project_name\": \"Wind Farm A\"\n}")
	for _, h := range headers {
		assert.Contains(t, fc.got.User, h)
	}
}

func TestRequester_IncompleteIsNotRetried(t *testing.T) {
	calls := 0
	fc := completerFunc(func(context.Context, Prompt) (string, error) {
		calls++
		return "Current strengths:\n- only one section", nil
	})
	_, err := NewRequester(discard(), fc, Options{}).Recommend(context.Background(), map[string]any{})
	var inc *IncompleteResponseError
	require.True(t, errors.As(err, &inc))
	assert.Len(t, inc.Missing, 3)
	assert.Equal(t, 1, calls)
}

type completerFunc func(context.Context, Prompt) (string, error)

func (f completerFunc) Complete(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

func TestChatClient_RequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama-3.3-70b-versatile", body.Model)
		assert.Equal(t, 0.5, body.Temperature)
		assert.Equal(t, 4096, body.MaxTokens)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "user", body.Messages[1].Role)

		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`)
	}))
	defer srv.Close()

	c := NewChatClient(discard(), srv.Client(), ChatConfig{
		Name: "groq", BaseURL: srv.URL + "/openai/v1/", APIKey: "secret", Model: "llama-3.3-70b-versatile",
	})
	out, err := c.Complete(context.Background(), Prompt{System: "s", User: "u", Temperature: 0.5, MaxTokens: 4096})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestChatClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer bad" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"Invalid API Key"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	bad := NewChatClient(discard(), srv.Client(), ChatConfig{BaseURL: srv.URL, APIKey: "bad"})
	_, err := bad.Complete(context.Background(), Prompt{})
	var apiErr *upstream.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, "Invalid API Key", apiErr.Message)

	empty := NewChatClient(discard(), srv.Client(), ChatConfig{BaseURL: srv.URL, APIKey: "ok"})
	_, err = empty.Complete(context.Background(), Prompt{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}
