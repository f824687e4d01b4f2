package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(buildInfo)
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A constant metric with labels for binary, version, commit and Go version.",
	},
	[]string{"binary", "version", "commit", "goversion"},
)

func SetBuildInfo(binary, version, commit string) {
	buildInfo.WithLabelValues(binary, version, commit, runtime.Version()).Set(1)
}
