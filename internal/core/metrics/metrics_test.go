package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

// TestMetrics_Record 测试 peerview 指标记录
func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetState(3)
	m.SetPVEs(5)
	m.SetClusterMembers(1, 2)
	m.MessageSent("ping")
	m.MessageSent("ping")
	m.MessageReceived("pong")
	m.PVEEvicted()
	m.InstanceReset()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.state))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.pves))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.clusterMembers.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues("ping", "out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("pong", "in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resets))
}

// TestRateMeter_Window 测试滑动窗口滚动
func TestRateMeter_Window(t *testing.T) {
	clk := clock.NewMock()
	r := NewRateMeter(clk)

	r.Add(600)
	assert.Equal(t, 10.0, r.Rate())

	clk.Add(30 * time.Second)
	r.Add(600)
	assert.Equal(t, 20.0, r.Rate())

	// 第一笔滑出窗口
	clk.Add(45 * time.Second)
	assert.Equal(t, 10.0, r.Rate())

	clk.Add(2 * time.Minute)
	assert.Equal(t, 0.0, r.Rate())
}

type nopTransport struct {
	handler interfaces.InboundHandler
	fail    error
}

func (n *nopTransport) Send(context.Context, interfaces.Destination, *types.Envelope) error {
	return n.fail
}
func (n *nopTransport) SetHandler(_ string, h interfaces.InboundHandler) { n.handler = h }
func (n *nopTransport) LocalAddrs() []types.EndpointAddress            { return nil }
func (n *nopTransport) Close() error                                    { return nil }

// TestMeteredTransport 测试包装传输统计流量
func TestMeteredTransport(t *testing.T) {
	bw := NewBandwidth(clock.NewMock())
	inner := &nopTransport{}
	tr := MeteredTransport(inner, bw)

	env := &types.Envelope{Protocol: "pv", Body: make([]byte, 100)}
	require.NoError(t, tr.Send(context.Background(), interfaces.ToPeer("x"), env))

	inner.fail = interfaces.ErrUnreachable
	assert.Error(t, tr.Send(context.Background(), interfaces.ToPeer("x"), env))

	called := false
	tr.SetHandler("pv", func(context.Context, *types.Envelope) error {
		called = true
		return nil
	})
	require.NoError(t, inner.handler(context.Background(), &types.Envelope{Protocol: "pv", Body: make([]byte, 40)}))
	assert.True(t, called)

	s := bw.ForProtocol("pv")
	assert.Equal(t, int64(100), s.TotalOut)
	assert.Equal(t, int64(40), s.TotalIn)
	assert.Equal(t, s, bw.Totals())
	assert.Equal(t, Stats{}, bw.ForProtocol("other"))

	assert.Same(t, inner, MeteredTransport(inner, nil))
}

// TestHandler_Expose 测试 HTTP 暴露
func TestHandler_Expose(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	bw := NewBandwidth(clock.NewMock())
	reg.MustRegister(bw)

	m.MessageSent("ping")
	bw.LogSent("pv", 7)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.Contains(out, `peerview_messages_total{direction="out",kind="ping"} 1`))
	assert.True(t, strings.Contains(out, `peerview_bytes_total{direction="out",protocol="pv"} 7`))
}

// TestModule_Load 测试模块加载
func TestModule_Load(t *testing.T) {
	var (
		pm  interfaces.PeerviewMetrics
		bw  *Bandwidth
		reg *prometheus.Registry
	)
	app := fxtest.New(t,
		fx.Supply(DefaultConfig()),
		Module,
		fx.Populate(&pm, &bw, &reg),
	)
	defer app.RequireStart().RequireStop()

	assert.IsType(t, &Metrics{}, pm)
	assert.NotNil(t, bw)
	assert.NotNil(t, reg)
}

// TestModule_Disabled 测试关闭指标
func TestModule_Disabled(t *testing.T) {
	var pm interfaces.PeerviewMetrics
	app := fxtest.New(t,
		fx.Supply(Config{}),
		Module,
		fx.Populate(&pm),
	)
	defer app.RequireStart().RequireStop()

	assert.Equal(t, interfaces.NopMetrics{}, pm)
}
