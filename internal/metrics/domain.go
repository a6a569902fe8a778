package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cvbuilder"

var (
	droppedColumnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "dropped_columns_total",
			Help:      "因表结构缺列而从写入 payload 中剥离的列数。",
		},
		[]string{"table", "column"},
	)

	entitlementFailOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "fail_open_total",
			Help:      "读取订阅或 CV 数量失败后返回默认权益的次数。",
		},
		[]string{"source"},
	)

	entitlementDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "denied_total",
			Help:      "因套餐限制被拒绝的操作数。",
		},
		[]string{"action"},
	)
)

// ObserveDroppedColumn 记录一次列剥离。
func ObserveDroppedColumn(table, column string) {
	droppedColumnsTotal.WithLabelValues(table, column).Inc()
}

// ObserveEntitlementFailOpen 记录一次权益降级，source 为 subscription 或 count。
func ObserveEntitlementFailOpen(source string) {
	entitlementFailOpenTotal.WithLabelValues(source).Inc()
}

// ObserveEntitlementDenied 记录一次被套餐拒绝的操作。
func ObserveEntitlementDenied(action string) {
	entitlementDeniedTotal.WithLabelValues(action).Inc()
}
