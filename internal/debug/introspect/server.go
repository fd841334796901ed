package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/dep2p/go-peerview/internal/core/metrics"
	"github.com/dep2p/go-peerview/internal/core/peerview"
	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/internal/util/logger"
	"github.com/dep2p/go-peerview/pkg/types"
)

var log = logger.Logger("introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// ============================================================================
//                              配置
// ============================================================================

// View 自省所需的 peerview 只读视图
type View interface {
	LocalID() types.PeerID
	State() peerview.State
	InstanceMask() (bighash.Hash, bool)
	MyCluster() (int, bool)
	ClusterCount() int
	PVEs() []peerview.PVEInfo
	Histogram(cluster int) ([]peerview.HistogramEntry, error)
}

// BandwidthReporter 带宽报告接口
type BandwidthReporter interface {
	Totals() metrics.Stats
}

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 DefaultAddr
	Addr string

	// View peerview 视图
	View View

	// Bandwidth 可选的带宽统计
	Bandwidth BandwidthReporter
}

// ============================================================================
//                              Server
// ============================================================================

// Server 本地自省 HTTP 服务
type Server struct {
	config Config

	server   *http.Server
	listener net.Listener

	running   bool
	startTime time.Time

	mu sync.Mutex
}

// New 创建自省服务
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{config: cfg}
}

// Handler 返回服务的路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/introspect", s.handleIntrospect)
	mux.HandleFunc("/debug/introspect/pves", s.handlePVEs)
	mux.HandleFunc("/debug/introspect/histogram", s.handleHistogram)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start 启动服务，重复调用无效
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("自省服务异常退出", "err", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	log.Info("自省服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务，重复调用无效
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		log.Error("关闭自省服务失败", "err", err)
		return err
	}
	s.running = false
	log.Info("自省服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ============================================================================
//                              响应结构
// ============================================================================

// IntrospectResponse 完整诊断响应
type IntrospectResponse struct {
	Timestamp time.Time      `json:"timestamp"`
	Uptime    string         `json:"uptime"`
	Peerview  *PeerviewInfo  `json:"peerview,omitempty"`
	Bandwidth *BandwidthInfo `json:"bandwidth,omitempty"`
	Runtime   *RuntimeInfo   `json:"runtime"`
}

// PeerviewInfo peerview 概要
type PeerviewInfo struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	InstanceMask string `json:"instance_mask,omitempty"`
	Cluster      *int   `json:"cluster,omitempty"`
	Clusters     int    `json:"clusters"`
	PVEs         int    `json:"pves"`
}

// PVE 一个 PVE 的描述
type PVE struct {
	ID        string    `json:"id"`
	Cluster   int       `json:"cluster"`
	Target    string    `json:"target"`
	Radius    string    `json:"radius"`
	Endpoints []string  `json:"endpoints,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HistogramBucket 直方图中的一段
type HistogramBucket struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Peers []string `json:"peers"`
}

// BandwidthInfo 带宽信息
type BandwidthInfo struct {
	TotalIn  int64   `json:"total_in"`
	TotalOut int64   `json:"total_out"`
	RateIn   float64 `json:"rate_in"`
	RateOut  float64 `json:"rate_out"`
}

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc"`
	NumGC        uint32 `json:"num_gc"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string    `json:"status"`
	State     string    `json:"state,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	resp := IntrospectResponse{
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started()).String(),
		Peerview:  s.collectPeerview(),
		Bandwidth: s.collectBandwidth(),
		Runtime:   collectRuntime(),
	}
	writeJSON(w, resp)
}

func (s *Server) handlePVEs(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.config.View == nil {
		http.Error(w, "peerview not available", http.StatusServiceUnavailable)
		return
	}
	pves := s.config.View.PVEs()
	out := make([]PVE, 0, len(pves))
	for _, e := range pves {
		p := PVE{
			ID:        e.PeerID.String(),
			Cluster:   e.Cluster,
			Target:    e.TargetHash.Hex(),
			Radius:    e.TargetHashRadius.Hex(),
			ExpiresAt: e.ExpiresAt,
		}
		if e.Adv != nil {
			for _, a := range e.Adv.Endpoints {
				p.Endpoints = append(p.Endpoints, a.String())
			}
		}
		out = append(out, p)
	}
	writeJSON(w, out)
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.config.View == nil {
		http.Error(w, "peerview not available", http.StatusServiceUnavailable)
		return
	}

	cluster, err := strconv.Atoi(r.URL.Query().Get("cluster"))
	if err != nil {
		http.Error(w, "cluster must be an integer", http.StatusBadRequest)
		return
	}
	hist, err := s.config.View.Histogram(cluster)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := make([]HistogramBucket, 0, len(hist))
	for _, h := range hist {
		b := HistogramBucket{Start: h.Start.Hex(), End: h.End.Hex(), Peers: []string{}}
		for _, id := range h.Peers {
			b.Peers = append(b.Peers, id.String())
		}
		out = append(out, b)
	}
	writeJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	health := HealthResponse{Status: "ok", Timestamp: time.Now()}
	if s.config.View == nil {
		health.Status = "degraded"
	} else {
		st := s.config.View.State()
		health.State = st.String()
		if st == peerview.StateStopped {
			health.Status = "stopped"
		}
	}
	writeJSON(w, health)
}

// ============================================================================
//                              数据收集
// ============================================================================

func (s *Server) collectPeerview() *PeerviewInfo {
	v := s.config.View
	if v == nil {
		return nil
	}
	info := &PeerviewInfo{
		ID:       v.LocalID().String(),
		State:    v.State().String(),
		Clusters: v.ClusterCount(),
		PVEs:     len(v.PVEs()),
	}
	if mask, ok := v.InstanceMask(); ok {
		info.InstanceMask = mask.Hex()
	}
	if c, ok := v.MyCluster(); ok {
		info.Cluster = &c
	}
	return info
}

func (s *Server) collectBandwidth() *BandwidthInfo {
	if s.config.Bandwidth == nil {
		return nil
	}
	t := s.config.Bandwidth.Totals()
	return &BandwidthInfo{TotalIn: t.TotalIn, TotalOut: t.TotalOut, RateIn: t.RateIn, RateOut: t.RateOut}
}

func collectRuntime() *RuntimeInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &RuntimeInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     m.Alloc,
		NumGC:        m.NumGC,
	}
}

func (s *Server) started() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return time.Now()
	}
	return s.startTime
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Debug("写出响应失败", "err", err)
	}
}
