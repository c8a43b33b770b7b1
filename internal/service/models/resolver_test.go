package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/iaengine/backend/internal/apperror"
)

func TestResolveKnownAlias(t *testing.T) {
	r, err := NewResolver("", DefaultAliases()...)
	require.NoError(t, err)

	got, err := r.Resolve("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, Resolution{UpstreamID: "gpt-4o-mini", AliasUsed: "gpt-4o-mini"}, got)
}

func TestResolveBlankUsesDefault(t *testing.T) {
	r, err := NewResolver("gpt-4o-mini", DefaultAliases()...)
	require.NoError(t, err)

	for _, in := range []string{"", "   "} {
		got, err := r.Resolve(in)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", got.AliasUsed)
	}
}

func TestResolveUnknownAliasNeverDefaults(t *testing.T) {
	r, err := NewResolver("", DefaultAliases()...)
	require.NoError(t, err)

	for _, in := range []string{"unknown-alias", "GPT-4O", "gpt-4o ", "claude"} {
		got, err := r.Resolve(in)
		if in == "gpt-4o " {
			require.NoError(t, err, "surrounding whitespace is trimmed")
			continue
		}
		require.Error(t, err, in)
		assert.True(t, apperror.Is(err, apperror.CodeUnsupportedModel))
		assert.Empty(t, got.UpstreamID)
		assert.Equal(t, in, apperror.As(err).Requested)
	}
}

func TestOverridesExtendTable(t *testing.T) {
	r, err := NewResolver("copy-vsl", WithOverrides(map[string]string{"copy-vsl": "gpt-4o-2024-08-06"})...)
	require.NoError(t, err)

	got, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-2024-08-06", got.UpstreamID)
	assert.Equal(t, []string{"copy-vsl", "gpt-4o", "gpt-4o-mini"}, r.Aliases())
}

func TestNewResolverRejectsMissingDefault(t *testing.T) {
	_, err := NewResolver("nope", DefaultAliases()...)
	require.Error(t, err)
}
