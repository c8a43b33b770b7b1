package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/iaengine/backend/internal/config"
)

// NewChatModel creates the upstream completion client selected by cfg.Provider.
// defaultModelID is used when a call does not pass model.WithModel.
func NewChatModel(ctx context.Context, cfg config.AIConfig, defaultModelID string) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		slog.Info("upstream provider configured", "provider", cfg.Provider, "base_url", cfg.OpenAIBaseURL)
		return NewOpenAIChatModel(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   defaultModelID,
		}), nil
	case config.ProviderArk:
		chatModel, err := cfg.NewArkChatModel(ctx, defaultModelID)
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		slog.Info("upstream provider configured", "provider", cfg.Provider, "region", cfg.Region)
		return chatModel, nil
	default:
		return nil, fmt.Errorf("unknown upstream provider %q", cfg.Provider)
	}
}
