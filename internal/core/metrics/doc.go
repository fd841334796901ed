// Package metrics 提供 peerview 的 Prometheus 指标
//
// 包含两部分：
//   - Metrics：peerview 状态、PVE 数量、消息计数等，实现 interfaces.PeerviewMetrics
//   - Bandwidth：按协议统计的流量与速率，通过 MeteredTransport 包装任意传输
//
// 二者都实现 prometheus.Collector 或注册到同一个 Registry，由 Handler 暴露。
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	bw := metrics.NewBandwidth(clock.New())
//	reg.MustRegister(bw)
//	tr = metrics.MeteredTransport(tr, bw)
//	http.Handle("/metrics", metrics.Handler(reg))
package metrics
