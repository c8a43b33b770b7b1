package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsupportedModelBody(t *testing.T) {
	err := UnsupportedModel("unknown-alias")

	assert.Equal(t, http.StatusUnprocessableEntity, err.Status)
	assert.Equal(t, map[string]string{"error": "unsupported_model", "requested": "unknown-alias"}, err.Body())
}

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("relay: %w", Upstream(cause))

	require.True(t, Is(err, CodeUpstream))
	require.ErrorIs(t, err, cause)

	appErr := As(err)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
	assert.Equal(t, "dial tcp: connection refused", appErr.Body()["detail"])
}

func TestAsWrapsUnknownErrors(t *testing.T) {
	appErr := As(errors.New("boom"))

	assert.Equal(t, CodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, map[string]string{"error": "internal_error"}, appErr.Body())
}
