package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/zhouzirui/iaengine/backend/internal/apperror"
	"github.com/zhouzirui/iaengine/backend/pkg/logger"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", logger.Err(err))
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondAppError renders err with the status and body of its error code.
func RespondAppError(w http.ResponseWriter, err error) {
	appErr := apperror.As(err)
	RespondJSON(w, appErr.Status, appErr.Body())
}
