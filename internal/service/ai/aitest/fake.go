// Package aitest provides an in-memory upstream chat model for tests.
package aitest

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Call is one recorded upstream invocation.
type Call struct {
	Model    string
	Messages []*schema.Message
}

// ChatModel is a scripted model.BaseChatModel that records every call.
type ChatModel struct {
	// Fragments are streamed in order.
	Fragments []string
	// StreamErr fails the call before any fragment is produced.
	StreamErr error
	// MidStreamErr is delivered after FailAfter fragments.
	MidStreamErr error
	FailAfter    int
	// Hang keeps the stream open after the fragments until the call context ends.
	Hang bool

	mu          sync.Mutex
	calls       []Call
	released    chan struct{}
	releaseOnce sync.Once
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// Calls returns a copy of the recorded invocations.
func (m *ChatModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Released is closed once a hanging stream has observed its context ending.
func (m *ChatModel) Released() <-chan struct{} {
	return m.releasedChan()
}

func (m *ChatModel) releasedChan() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released == nil {
		m.released = make(chan struct{})
	}
	return m.released
}

func (m *ChatModel) record(input []*schema.Message, opts []model.Option) {
	options := model.GetCommonOptions(&model.Options{}, opts...)
	call := Call{Messages: make([]*schema.Message, 0, len(input))}
	if options.Model != nil {
		call.Model = *options.Model
	}
	for _, msg := range input {
		copied := *msg
		call.Messages = append(call.Messages, &copied)
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

// Generate returns the fragments joined into one message.
func (m *ChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.record(input, opts)
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	return schema.AssistantMessage(strings.Join(m.Fragments, ""), nil), nil
}

// Stream replays the scripted fragments.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input, opts)
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}

	released := m.releasedChan()
	sr, sw := schema.Pipe[*schema.Message](len(m.Fragments) + 1)
	go func() {
		defer sw.Close()
		for i, fragment := range m.Fragments {
			if m.MidStreamErr != nil && i == m.FailAfter {
				sw.Send(nil, m.MidStreamErr)
				return
			}
			if closed := sw.Send(&schema.Message{Role: schema.Assistant, Content: fragment}, nil); closed {
				return
			}
		}
		if m.MidStreamErr != nil && m.FailAfter >= len(m.Fragments) {
			sw.Send(nil, m.MidStreamErr)
			return
		}
		if m.Hang {
			<-ctx.Done()
			m.releaseOnce.Do(func() { close(released) })
			sw.Send(nil, ctx.Err())
		}
	}()
	return sr, nil
}
