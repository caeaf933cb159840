package httpx

import (
	"net/http"

	"github.com/shortontech/netlens/internal/metrics"
)

// NewMux wires the public endpoints and the middleware stack.
func NewMux(e Env, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.Healthz)
	mux.HandleFunc("/readyz", e.Readyz)
	mux.HandleFunc("/v1/detect", e.Detect)

	return RequestLogger(MetricsMiddleware(m)(cors(mux)))
}
