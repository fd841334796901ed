package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// Namespace 指标命名空间
const Namespace = "peerview"

// 确保实现了接口
var _ interfaces.PeerviewMetrics = (*Metrics)(nil)

// Metrics peerview 的 Prometheus 指标
type Metrics struct {
	state          prometheus.Gauge
	pves           prometheus.Gauge
	clusterMembers *prometheus.GaugeVec
	messages       *prometheus.CounterVec
	evictions      prometheus.Counter
	resets         prometheus.Counter
}

// New 创建指标并注册到 reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "state",
			Help:      "Current peerview state.",
		}),
		pves: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pves",
			Help:      "Known peerview elements including self.",
		}),
		clusterMembers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cluster_members",
			Help:      "Members per cluster.",
		}, []string{"cluster"}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_total",
			Help:      "Peerview messages by kind and direction.",
		}, []string{"kind", "direction"}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "evictions_total",
			Help:      "Expired peerview elements removed.",
		}),
		resets: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "instance_resets_total",
			Help:      "Switches to a peerview instance with a smaller mask.",
		}),
	}
}

// SetState 实现 interfaces.PeerviewMetrics
func (m *Metrics) SetState(state int) { m.state.Set(float64(state)) }

// SetPVEs 实现 interfaces.PeerviewMetrics
func (m *Metrics) SetPVEs(n int) { m.pves.Set(float64(n)) }

// SetClusterMembers 实现 interfaces.PeerviewMetrics
func (m *Metrics) SetClusterMembers(cluster, n int) {
	m.clusterMembers.WithLabelValues(strconv.Itoa(cluster)).Set(float64(n))
}

// MessageSent 实现 interfaces.PeerviewMetrics
func (m *Metrics) MessageSent(kind string) {
	m.messages.WithLabelValues(kind, "out").Inc()
}

// MessageReceived 实现 interfaces.PeerviewMetrics
func (m *Metrics) MessageReceived(kind string) {
	m.messages.WithLabelValues(kind, "in").Inc()
}

// PVEEvicted 实现 interfaces.PeerviewMetrics
func (m *Metrics) PVEEvicted() { m.evictions.Inc() }

// InstanceReset 实现 interfaces.PeerviewMetrics
func (m *Metrics) InstanceReset() { m.resets.Inc() }
