package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo)
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "smm_build_info",
		Help: "A constant metric with labels for version and storage backend.",
	},
	[]string{"version", "storage"},
)

func SetBuildInfo(version, storage string) {
	buildInfo.WithLabelValues(version, norm(storage)).Set(1)
}
