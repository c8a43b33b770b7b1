package prompt

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/zhouzirui/iaengine/backend/pkg/logger"
)

// EnvKey is the environment variable that overrides every other prompt source.
const EnvKey = "SYSTEM_PROMPT"

// DefaultText is used when neither the environment nor a fallback file provides a prompt.
const DefaultText = "You are a focused and concise AI assistant. Follow brand tone and keep responses actionable."

// truncationThreshold is the length under which a single-line env prompt looks mangled.
const truncationThreshold = 300

// Source records where the resolved prompt came from.
type Source string

const (
	SourceEnvironment Source = "environment"
	SourceFile        Source = "file"
	SourceDefault     Source = "default"
)

// Resolved is the prompt to send as the leading system message.
type Resolved struct {
	Text              string
	Source            Source
	SuspectTruncation bool
}

// FromEnvironment reports whether the environment override was used.
func (r Resolved) FromEnvironment() bool {
	return r.Source == SourceEnvironment
}

// Fallback is the prompt used when the environment has none. It is loaded once.
type Fallback struct {
	Text   string
	Source Source
}

// LoadFallback reads the private prompt file at path. An empty path selects the built-in
// default; an unreadable or empty file is logged and also falls back to the default.
func LoadFallback(path string) Fallback {
	path = strings.TrimSpace(path)
	if path == "" {
		return Fallback{Text: DefaultText, Source: SourceDefault}
	}

	text, err := readPromptFile(path)
	if err != nil {
		slog.Warn("system prompt file unusable, using built-in default", "path", path, logger.Err(err))
		return Fallback{Text: DefaultText, Source: SourceDefault}
	}
	return Fallback{Text: text, Source: SourceFile}
}

func readPromptFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("prompt file %s is empty", abs)
	}
	return text, nil
}

// Resolver layers the environment override over the fallback prompt.
type Resolver struct {
	fallback Fallback
	lookup   func(string) (string, bool)
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithLookup replaces os.LookupEnv.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(r *Resolver) {
		r.lookup = lookup
	}
}

// NewResolver creates a resolver around an already loaded fallback.
func NewResolver(fallback Fallback, opts ...Option) *Resolver {
	if strings.TrimSpace(fallback.Text) == "" {
		fallback = Fallback{Text: DefaultText, Source: SourceDefault}
	}
	r := &Resolver{fallback: fallback, lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the prompt for the next exchange. It never fails.
func (r *Resolver) Resolve() Resolved {
	raw, _ := r.lookup(EnvKey)
	if strings.TrimSpace(raw) == "" {
		return Resolved{Text: r.fallback.Text, Source: r.fallback.Source}
	}

	return Resolved{
		Text:              raw,
		Source:            SourceEnvironment,
		SuspectTruncation: looksTruncated(raw),
	}
}

// looksTruncated guesses that a multi-line prompt was flattened by single-line env encoding:
// no escaped newline marker, a single line, and shorter than the threshold.
func looksTruncated(value string) bool {
	return !strings.Contains(value, `\n`) &&
		!strings.Contains(value, "\n") &&
		utf8.RuneCountInString(value) < truncationThreshold
}
