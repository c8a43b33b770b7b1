package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/iaengine/backend/internal/config"
)

func TestNewChatModelOpenAI(t *testing.T) {
	m, err := NewChatModel(context.Background(), config.AIConfig{Provider: config.ProviderOpenAI, OpenAIKey: "sk-test"}, "gpt-4o")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIChatModel{}, m)
}

func TestNewChatModelUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), config.AIConfig{Provider: "bedrock"}, "gpt-4o")
	require.Error(t, err)
}

func TestNewChatModelArkWithoutCredentials(t *testing.T) {
	_, err := NewChatModel(context.Background(), config.AIConfig{Provider: config.ProviderArk}, "doubao-pro")
	require.Error(t, err)
}
