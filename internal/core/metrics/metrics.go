// Package metrics 提供 Prometheus 指标
//
// 每个节点持有独立的 prometheus.Registry，同一进程内的多个节点互不干扰。
// *Metrics 为 nil 时所有记录方法均为空操作。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dep2p/go-nodehost/pkg/types"
)

const namespace = "nodehost"

// 升级结果标签
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics 节点指标集合
type Metrics struct {
	registry *prometheus.Registry

	peers           *prometheus.GaugeVec
	dials           *prometheus.CounterVec
	upgrades        *prometheus.CounterVec
	upgradeDuration *prometheus.HistogramVec
	disconnects     *prometheus.CounterVec
	prunes          prometheus.Counter
	discovered      *prometheus.CounterVec
	discoveryErrors *prometheus.CounterVec
	bytes           *prometheus.CounterVec
}

// New 创建指标集合并注册到新的 Registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connmgr",
			Name:      "peers",
			Help:      "Number of peers per connection state.",
		}, []string{"state"}),
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connmgr",
			Name:      "dials_total",
			Help:      "Outbound dial attempts by result.",
		}, []string{"result"}),
		upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upgrader",
			Name:      "upgrades_total",
			Help:      "Connection upgrades by direction and result.",
		}, []string{"direction", "result"}),
		upgradeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upgrader",
			Name:      "upgrade_duration_seconds",
			Help:      "Time spent upgrading raw connections.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"direction"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connmgr",
			Name:      "disconnects_total",
			Help:      "Disconnected sessions by reason.",
		}, []string{"reason"}),
		prunes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connmgr",
			Name:      "prunes_total",
			Help:      "Sessions pruned to enforce the peer limit.",
		}),
		discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "peers_found_total",
			Help:      "Peer records produced by each discovery mechanism.",
		}, []string{"source"}),
		discoveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "errors_total",
			Help:      "Discovery mechanism failures.",
		}, []string{"source"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "bytes_total",
			Help:      "Bytes transferred on upgraded connections.",
		}, []string{"direction"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.peers, m.dials, m.upgrades, m.upgradeDuration, m.disconnects,
		m.prunes, m.discovered, m.discoveryErrors, m.bytes,
	)
	return m
}

// Registry 返回底层 Registry，供 /metrics 暴露
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetPeers 设置各状态的节点数
func (m *Metrics) SetPeers(counts map[types.PeerState]int) {
	if m == nil {
		return
	}
	for _, s := range []types.PeerState{types.StateDialing, types.StateConnected, types.StatePruned} {
		m.peers.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// ObserveDial 记录一次拨号结果
func (m *Metrics) ObserveDial(err error) {
	if m == nil {
		return
	}
	m.dials.WithLabelValues(result(err)).Inc()
}

// ObserveUpgrade 记录一次升级
func (m *Metrics) ObserveUpgrade(dir types.Direction, start time.Time, err error) {
	if m == nil {
		return
	}
	m.upgrades.WithLabelValues(dir.String(), result(err)).Inc()
	m.upgradeDuration.WithLabelValues(dir.String()).Observe(time.Since(start).Seconds())
}

// ObserveDisconnect 记录一次断开
func (m *Metrics) ObserveDisconnect(reason types.DisconnectReason) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(reason.String()).Inc()
	if reason == types.ReasonPruned {
		m.prunes.Inc()
	}
}

// ObserveDiscovered 记录一个发现结果
func (m *Metrics) ObserveDiscovered(source string) {
	if m == nil {
		return
	}
	m.discovered.WithLabelValues(source).Inc()
}

// ObserveDiscoveryError 记录一次发现机制失败
func (m *Metrics) ObserveDiscoveryError(source string) {
	if m == nil {
		return
	}
	m.discoveryErrors.WithLabelValues(source).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
