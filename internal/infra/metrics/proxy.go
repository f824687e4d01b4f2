package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(proxyRequestsTotal) }

var proxyRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "proxy_requests_total",
		Help: "Requests forwarded by the Bakong proxy, by method and upstream status code.",
	},
	[]string{"method", "code"},
)

func IncProxyRequest(method string, code int) {
	proxyRequestsTotal.WithLabelValues(norm(method), strconv.Itoa(code)).Inc()
}
