package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Send(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "#### Delete `a.go` \"unused\""},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
	defer srv.Close()

	m, err := NewOpenAI(Config{APIKey: "sk-test", Model: "gpt-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	out, err := m.Send(context.Background(), "remove a.go")
	require.NoError(t, err)
	assert.Equal(t, "#### Delete `a.go` \"unused\"", out)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, "remove a.go", got.Messages[1].Content)
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	m, err := NewOpenAI(Config{APIKey: "k", Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = m.Send(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestNewOpenAI_RequiresKeyAndModel(t *testing.T) {
	_, err := NewOpenAI(Config{Model: "m"})
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
	_, err = NewOpenAI(Config{APIKey: "k"})
	assert.ErrorContains(t, err, "model")
}

func TestModelFunc(t *testing.T) {
	var m Model = ModelFunc(func(_ context.Context, p string) (string, error) { return "echo " + p, nil })
	out, err := m.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo hi", out)
}

func TestBuildChangePrompt(t *testing.T) {
	out, err := BuildChangePrompt("  rename the helper\n", []File{
		{Path: "util.go", Content: "package util\n"},
		{Path: "README.md", Content: "```sh\nmake\n```\n"},
	})
	require.NoError(t, err)

	assert.Contains(t, out, "rename the helper\n\nContext files:")
	assert.Contains(t, out, "```util.go\npackage util\n```\n")
	assert.Contains(t, out, "````README.md\n```sh\nmake\n```\n````\n")
	assert.Contains(t, out, "#### Move `old/path` to `new/path` \"reason\"")
	assert.Contains(t, out, "<<<< original")

	_, err = BuildChangePrompt(" ", nil)
	assert.Error(t, err)
}

func TestFence(t *testing.T) {
	assert.Equal(t, "```", fence("plain"))
	assert.Equal(t, "`````", fence("a ```` b"))
}
