package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/zhouzirui/iaengine/backend/internal/apperror"
	"github.com/zhouzirui/iaengine/backend/internal/metrics"
	"github.com/zhouzirui/iaengine/backend/pkg/utils"
)

// KeyFunc derives the rate limit bucket of a request.
type KeyFunc = httprate.KeyFunc

// KeyByIP buckets requests by client address. Run chi's RealIP first behind a proxy.
var KeyByIP KeyFunc = httprate.KeyByIP

// RateLimit rejects requests beyond limit per sliding window for the same key with
// 429 rate_limited. Rejections are immediate; nothing is queued.
func RateLimit(route string, limit int, window time.Duration, key KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.RateLimited.WithLabelValues(route).Inc()
			utils.RespondAppError(w, apperror.RateLimited())
		}),
	)
}
