// Package metrics 业务指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 跳转结果
const (
	OutcomeRedirected = "redirected"
	OutcomeNotFound   = "not_found"
	OutcomeLimited    = "limit_reached"
	OutcomeError      = "error"
)

var (
	redirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shorturl_redirects_total",
			Help: "Short URL resolutions partitioned by outcome",
		},
		[]string{"outcome"},
	)

	linksCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shorturl_links_created_total",
			Help: "Links created partitioned by kind (generated or alias)",
		},
		[]string{"kind"},
	)
)

// RecordRedirect 记录一次跳转结果
func RecordRedirect(outcome string) {
	redirectsTotal.WithLabelValues(outcome).Inc()
}

// RecordCreated 记录一次创建，kind 为 generated 或 alias
func RecordCreated(kind string) {
	linksCreatedTotal.WithLabelValues(kind).Inc()
}
