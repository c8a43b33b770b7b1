package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	mu       sync.Mutex
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func streamingServer(t *testing.T, fragments []string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		captured.mu.Lock()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		modelID := captured.Model
		captured.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i, fragment := range fragments {
			chunk := map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"created": 1700000000,
				"model":   modelID,
				"choices": []map[string]any{{
					"index": 0,
					"delta": map[string]string{"content": fragment},
				}},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
			if i == 0 {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

func collect(t *testing.T, sr *schema.StreamReader[*schema.Message]) []string {
	t.Helper()
	defer sr.Close()

	var out []string
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, msg.Content)
	}
}

func TestOpenAIStreamRelaysFragmentsInOrder(t *testing.T) {
	var captured capturedRequest
	srv := streamingServer(t, []string{"Hi", " there"}, &captured)
	defer srv.Close()

	m := NewOpenAIChatModel(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o"})
	sr, err := m.Stream(context.Background(), []*schema.Message{
		schema.SystemMessage("be brief"),
		schema.UserMessage("hello"),
	}, model.WithModel("gpt-4o-mini"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi", " there"}, collect(t, sr))

	captured.mu.Lock()
	defer captured.mu.Unlock()
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.True(t, captured.Stream)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
}

func TestOpenAIStreamHTTPErrorBeforeStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	m := NewOpenAIChatModel(OpenAIConfig{APIKey: "sk-bad", BaseURL: srv.URL, Model: "gpt-4o"})
	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hello")})
	require.Error(t, err)
	assert.Nil(t, sr)
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-2","object":"chat.completion","created":1700000000,"model":"gpt-4o",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	m := NewOpenAIChatModel(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o"})
	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hello")})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", msg.Content)
	assert.Equal(t, schema.Assistant, msg.Role)
}

func TestToOpenAIMessagesMapsRoles(t *testing.T) {
	got := toOpenAIMessages([]*schema.Message{
		schema.SystemMessage("s"),
		nil,
		schema.UserMessage("u"),
		schema.AssistantMessage("a", nil),
	})

	require.Len(t, got, 3)
	assert.Equal(t, "system", got[0].Role)
	assert.Equal(t, "user", got[1].Role)
	assert.Equal(t, "assistant", got[2].Role)
}
