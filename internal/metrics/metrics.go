package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "iaengine"

// Chat exchange outcomes.
const (
	OutcomeCompleted      = "completed"
	OutcomeInvalidPayload = "invalid_payload"
	OutcomeUnsupported    = "unsupported_model"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeStreamFailed   = "stream_failed"
	OutcomeClientGone     = "client_gone"
)

var (
	ChatExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_exchanges_total",
		Help:      "Chat relay exchanges by outcome.",
	}, []string{"outcome"})

	ChatFragments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_fragments_total",
		Help:      "Text fragments relayed to clients.",
	})

	UpstreamFirstFragment = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_first_fragment_seconds",
		Help:      "Time from upstream call to its first fragment.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"model"})

	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"route"})
)

// RegisterSessionGauge exports the live session count reported by count.
func RegisterSessionGauge(reg prometheus.Registerer, count func() int) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions currently held in memory.",
	}, func() float64 {
		return float64(count())
	}))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
