package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats 带宽统计快照
type Stats struct {
	TotalIn  int64   // 总入站字节
	TotalOut int64   // 总出站字节
	RateIn   float64 // 入站速率（字节/秒）
	RateOut  float64 // 出站速率（字节/秒）
}

// meter 单个协议的计数器
type meter struct {
	in, out         atomic.Int64
	inRate, outRate *RateMeter
}

// Bandwidth 按协议统计消息体流量
//
// Bandwidth 同时实现 prometheus.Collector。
type Bandwidth struct {
	clock clock.Clock

	mu     sync.RWMutex
	protos map[string]*meter

	bytesDesc *prometheus.Desc
	rateDesc  *prometheus.Desc
}

var _ prometheus.Collector = (*Bandwidth)(nil)

// NewBandwidth 创建带宽统计
func NewBandwidth(clk clock.Clock) *Bandwidth {
	if clk == nil {
		clk = clock.New()
	}
	return &Bandwidth{
		clock:  clk,
		protos: make(map[string]*meter),
		bytesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "bytes_total"),
			"Message body bytes by protocol and direction.",
			[]string{"protocol", "direction"}, nil,
		),
		rateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "bytes_rate"),
			"Average bytes per second over the last minute.",
			[]string{"protocol", "direction"}, nil,
		),
	}
}

// LogSent 记录出站字节
func (b *Bandwidth) LogSent(protocol string, n int64) {
	m := b.meter(protocol)
	m.out.Add(n)
	m.outRate.Add(n)
}

// LogRecv 记录入站字节
func (b *Bandwidth) LogRecv(protocol string, n int64) {
	m := b.meter(protocol)
	m.in.Add(n)
	m.inRate.Add(n)
}

// ForProtocol 返回协议的统计快照
func (b *Bandwidth) ForProtocol(protocol string) Stats {
	b.mu.RLock()
	m := b.protos[protocol]
	b.mu.RUnlock()
	if m == nil {
		return Stats{}
	}
	return m.stats()
}

// Totals 返回所有协议的合计
func (b *Bandwidth) Totals() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total Stats
	for _, m := range b.protos {
		s := m.stats()
		total.TotalIn += s.TotalIn
		total.TotalOut += s.TotalOut
		total.RateIn += s.RateIn
		total.RateOut += s.RateOut
	}
	return total
}

// Describe 实现 prometheus.Collector
func (b *Bandwidth) Describe(ch chan<- *prometheus.Desc) {
	ch <- b.bytesDesc
	ch <- b.rateDesc
}

// Collect 实现 prometheus.Collector
func (b *Bandwidth) Collect(ch chan<- prometheus.Metric) {
	b.mu.RLock()
	names := make([]string, 0, len(b.protos))
	for name := range b.protos {
		names = append(names, name)
	}
	b.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		s := b.ForProtocol(name)
		ch <- prometheus.MustNewConstMetric(b.bytesDesc, prometheus.CounterValue, float64(s.TotalIn), name, "in")
		ch <- prometheus.MustNewConstMetric(b.bytesDesc, prometheus.CounterValue, float64(s.TotalOut), name, "out")
		ch <- prometheus.MustNewConstMetric(b.rateDesc, prometheus.GaugeValue, s.RateIn, name, "in")
		ch <- prometheus.MustNewConstMetric(b.rateDesc, prometheus.GaugeValue, s.RateOut, name, "out")
	}
}

func (b *Bandwidth) meter(protocol string) *meter {
	b.mu.RLock()
	m := b.protos[protocol]
	b.mu.RUnlock()
	if m != nil {
		return m
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if m = b.protos[protocol]; m == nil {
		m = &meter{inRate: NewRateMeter(b.clock), outRate: NewRateMeter(b.clock)}
		b.protos[protocol] = m
	}
	return m
}

func (m *meter) stats() Stats {
	return Stats{
		TotalIn:  m.in.Load(),
		TotalOut: m.out.Load(),
		RateIn:   m.inRate.Rate(),
		RateOut:  m.outRate.Rate(),
	}
}
