package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/iaengine/backend/internal/apperror"
	"github.com/zhouzirui/iaengine/backend/internal/metrics"
	"github.com/zhouzirui/iaengine/backend/internal/model/chat"
	"github.com/zhouzirui/iaengine/backend/internal/service/models"
	"github.com/zhouzirui/iaengine/backend/internal/service/prompt"
	"github.com/zhouzirui/iaengine/backend/pkg/logger"
)

// ModelResolver maps a requested alias to an upstream model.
type ModelResolver interface {
	Resolve(requested string) (models.Resolution, error)
}

// PromptResolver supplies the leading system prompt.
type PromptResolver interface {
	Resolve() prompt.Resolved
}

// Service runs chat exchanges against the upstream model.
type Service struct {
	models  ModelResolver
	prompts PromptResolver
	chain   compose.Runnable[map[string]any, *schema.Message]
	debug   bool
}

// Option customises a Service.
type Option func(*Service)

// WithDiagnostics logs the assembled exchange at info level.
func WithDiagnostics(enabled bool) Option {
	return func(s *Service) {
		s.debug = enabled
	}
}

const (
	systemVar  = "system"
	historyVar = "history"
)

// NewConversationTemplate renders exactly one system message followed by the history turns.
func NewConversationTemplate() einoprompt.ChatTemplate {
	return einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{"+systemVar+"}"),
		schema.MessagesPlaceholder(historyVar, false),
	)
}

// NewService wires the relay to its resolvers and compiles the template -> model chain.
func NewService(ctx context.Context, resolver ModelResolver, prompts PromptResolver, upstream model.BaseChatModel, opts ...Option) (*Service, error) {
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(NewConversationTemplate())
	chain.AppendChatModel(upstream)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	s := &Service{
		models:  resolver,
		prompts: prompts,
		chain:   runnable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start validates req, resolves model and prompt, and opens the upstream stream.
// Every failure is returned before anything is written to the client; the first
// upstream fragment is awaited so that early upstream failures are reported here too.
func (s *Service) Start(ctx context.Context, req ChatRequest) (*Stream, error) {
	turns, err := Validate(req)
	if err != nil {
		metrics.ChatExchanges.WithLabelValues(metrics.OutcomeInvalidPayload).Inc()
		return nil, err
	}

	resolution, err := s.models.Resolve(req.Model)
	if err != nil {
		metrics.ChatExchanges.WithLabelValues(metrics.OutcomeUnsupported).Inc()
		return nil, err
	}

	system := s.prompts.Resolve()
	if system.SuspectTruncation {
		slog.WarnContext(ctx, "SYSTEM_PROMPT looks truncated; prefer SYSTEM_PROMPT_FILE or escape newlines as \\n",
			"len", len(system.Text))
	}

	vars := ConversationVars(system.Text, turns)
	if s.debug {
		s.logDiagnostics(ctx, req.Model, resolution, system, turns)
	}

	started := time.Now()
	reader, err := s.chain.Stream(ctx, vars, compose.WithChatModelOption(model.WithModel(resolution.UpstreamID)))
	if err != nil {
		metrics.ChatExchanges.WithLabelValues(metrics.OutcomeUpstreamError).Inc()
		slog.ErrorContext(ctx, "upstream call failed", "model", resolution.UpstreamID, logger.Err(err))
		return nil, apperror.Upstream(err)
	}

	stream := &Stream{reader: reader, Model: resolution}
	if err := stream.prime(); err != nil {
		stream.Close()
		metrics.ChatExchanges.WithLabelValues(metrics.OutcomeUpstreamError).Inc()
		slog.ErrorContext(ctx, "upstream failed before first fragment", "model", resolution.UpstreamID, logger.Err(err))
		return nil, apperror.Upstream(err)
	}
	metrics.UpstreamFirstFragment.WithLabelValues(resolution.UpstreamID).Observe(time.Since(started).Seconds())

	return stream, nil
}

// ConversationVars binds the template variables of one exchange.
func ConversationVars(system string, turns []chat.Message) map[string]any {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return map[string]any{
		systemVar:  system,
		historyVar: history,
	}
}

var weakModelMarkers = []string{"gpt-3.5", "mini", "small"}

func (s *Service) logDiagnostics(ctx context.Context, requested string, resolution models.Resolution, system prompt.Resolved, turns []chat.Message) {
	roles := make([]string, 0, len(turns)+1)
	roles = append(roles, string(schema.System))
	for _, turn := range turns {
		roles = append(roles, string(turn.Role))
	}
	if requested == "" {
		requested = "(default)"
	}

	slog.InfoContext(ctx, "chat exchange assembled",
		"roles", strings.Join(roles, ","),
		"system_len", len(system.Text),
		"system_source", string(system.Source),
		"from_env", system.FromEnvironment(),
		"model_requested", requested,
		"model_resolved", resolution.UpstreamID,
		"alias", resolution.AliasUsed,
	)

	lower := strings.ToLower(resolution.UpstreamID)
	for _, marker := range weakModelMarkers {
		if strings.Contains(lower, marker) {
			slog.WarnContext(ctx, "model may ignore a long system prompt; consider a larger model", "model", resolution.UpstreamID)
			break
		}
	}
}

// Stream is a pull subscription over the upstream fragments of one exchange.
type Stream struct {
	Model models.Resolution

	reader  *schema.StreamReader[*schema.Message]
	pending string
	eof     bool
	closed  bool
}

// prime waits for the first non-empty fragment so that failures up to that point
// are reported before anything is written to the client.
func (s *Stream) prime() error {
	for {
		msg, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.eof = true
			return nil
		}
		if err != nil {
			return err
		}
		if msg != nil && msg.Content != "" {
			s.pending = msg.Content
			return nil
		}
	}
}

// Next returns the next non-empty fragment, io.EOF when the upstream finished,
// or the upstream error.
func (s *Stream) Next() (string, error) {
	if s.pending != "" {
		fragment := s.pending
		s.pending = ""
		return fragment, nil
	}
	if s.eof {
		return "", io.EOF
	}

	for {
		msg, err := s.reader.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
			}
			return "", err
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		return msg.Content, nil
	}
}

// Close releases the upstream stream. It is safe to call more than once.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.reader.Close()
}
