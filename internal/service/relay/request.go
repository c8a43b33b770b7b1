package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/zhouzirui/iaengine/backend/internal/apperror"
	"github.com/zhouzirui/iaengine/backend/internal/model/chat"
)

// Request limits.
const (
	MaxBodyBytes     = 1 << 20
	MaxMessages      = 40
	MaxContentLength = 4000
	MaxModelLength   = 100
)

// ChatRequest is the body of a chat call.
type ChatRequest struct {
	Messages []chat.Message `json:"messages"`
	Model    string         `json:"model,omitempty"`
}

// DecodeRequest parses a chat request body. Any decoding problem is an invalid_payload error.
func DecodeRequest(body io.Reader) (ChatRequest, error) {
	var req ChatRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ChatRequest{}, apperror.InvalidPayload("request body exceeds %d bytes", MaxBodyBytes)
		}
		return ChatRequest{}, apperror.InvalidPayload("malformed JSON body: %v", err)
	}
	if dec.More() {
		return ChatRequest{}, apperror.InvalidPayload("unexpected data after JSON body")
	}
	return req, nil
}

// Validate drops client-supplied system turns and checks the remaining conversation.
// It returns the sanitized turns in their original order.
func Validate(req ChatRequest) ([]chat.Message, error) {
	turns := make([]chat.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == chat.RoleSystem {
			continue
		}
		turns = append(turns, msg)
	}

	if len(turns) == 0 {
		return nil, apperror.InvalidPayload("messages must contain at least one user or assistant turn")
	}
	if len(turns) > MaxMessages {
		return nil, apperror.InvalidPayload("messages must contain at most %d turns, got %d", MaxMessages, len(turns))
	}

	for i, msg := range turns {
		if msg.Role != chat.RoleUser && msg.Role != chat.RoleAssistant {
			return nil, apperror.InvalidPayload("messages[%d].role must be user or assistant, got %q", i, msg.Role)
		}
		n := utf8.RuneCountInString(msg.Content)
		if n < 1 || n > MaxContentLength {
			return nil, apperror.InvalidPayload("messages[%d].content must be 1-%d characters, got %d", i, MaxContentLength, n)
		}
	}

	if n := utf8.RuneCountInString(req.Model); n > MaxModelLength {
		return nil, apperror.InvalidPayload("model must be at most %d characters, got %d", MaxModelLength, n)
	}

	return turns, nil
}
