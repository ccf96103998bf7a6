package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "viewtube", Name: "login_attempts_total", Help: "Login attempts by result."},
		[]string{"result"},
	)
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "viewtube", Name: "token_refreshes_total", Help: "Refresh-token rotations by result."},
		[]string{"result"},
	)
	TokenReuseDetected = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "viewtube", Name: "token_reuse_detected_total", Help: "Refresh tokens rejected as replays of superseded values."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(TokenRefreshes)
	reg.MustRegister(TokenReuseDetected)
}
