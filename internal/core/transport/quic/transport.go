// Package quic 实现基于 QUIC 的 peerview 传输
//
// 监听与拨号共用一个 UDP socket（quic.Transport），因此对端看到的
// 源地址就是本节点的监听地址，可以直接用于回复。每条消息占用一条
// 单向流，流内是一个 uvarint 长度前缀的帧。
//
// 节点 ID 到地址的映射有两个来源：入站消息学到的源地址（LRU 缓存），
// 以及外部 Resolver（通常是广告存储）。
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/dep2p/go-peerview/internal/core/identity"
	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/internal/util/logger"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

var log = logger.Logger("transport/quic")

// 确保实现了接口
var _ interfaces.Transport = (*Transport)(nil)

// Scheme QUIC 地址协议
const Scheme = "quic"

// ErrPeerIDMismatch 对端证书与目标节点 ID 不一致
var ErrPeerIDMismatch = errors.New("quic: peer id mismatch")

// Resolver 节点 ID 到端点地址的解析
type Resolver interface {
	Resolve(ctx context.Context, id types.PeerID) ([]types.EndpointAddress, error)
}

// Config 传输配置
type Config struct {
	// ListenAddr UDP 监听地址，如 "0.0.0.0:9700"
	ListenAddr string

	// IdleTimeout 连接空闲超时
	IdleTimeout time.Duration

	// KeepAlive 保活间隔
	KeepAlive time.Duration

	// ReadTimeout 读取一帧的超时
	ReadTimeout time.Duration

	// AddrCacheSize 学到的地址缓存条目数
	AddrCacheSize int

	// AnnounceAddrs 对外公布的 host:port，为空时由监听地址推导
	AnnounceAddrs []string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ListenAddr:    "0.0.0.0:9700",
		IdleTimeout:   30 * time.Second,
		KeepAlive:     10 * time.Second,
		ReadTimeout:   10 * time.Second,
		AddrCacheSize: 1024,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("quic: listen address is required")
	}
	if c.IdleTimeout <= 0 || c.KeepAlive <= 0 || c.ReadTimeout <= 0 {
		return errors.New("quic: timeouts must be positive")
	}
	if c.AddrCacheSize <= 0 {
		return errors.New("quic: addr cache size must be positive")
	}
	return validateAnnounce(c.AnnounceAddrs)
}

// peerConn 一条已建立的连接
type peerConn struct {
	conn   quic.Connection
	remote types.PeerID
}

// Transport QUIC 传输
type Transport struct {
	id        *identity.Identity
	cfg       Config
	serverTLS *tls.Config
	clientTLS *tls.Config
	qconf     *quic.Config
	resolver  Resolver

	udp *net.UDPConn
	qt  *quic.Transport
	ln  *quic.Listener

	// addrs 入站学到的节点地址（host:port）
	addrs *lru.Cache[types.PeerID, string]

	mu     sync.Mutex
	conns  map[string]*peerConn
	closed bool

	hmu      sync.RWMutex
	handlers map[string]interfaces.InboundHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建传输并开始监听
//
// resolver 可以为 nil，此时只能向地址或已学到地址的节点发送。
func New(cfg Config, id *identity.Identity, resolver Resolver) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if id == nil {
		return nil, errors.New("quic: identity is required")
	}
	server, client, err := newTLSConfigs(id)
	if err != nil {
		return nil, err
	}
	addrs, err := lru.New[types.PeerID, string](cfg.AddrCacheSize)
	if err != nil {
		return nil, err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("quic: parse listen address: %w", err)
	}
	udp, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("quic: listen udp: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		id:        id,
		cfg:       cfg,
		serverTLS: server,
		clientTLS: client,
		qconf: &quic.Config{
			MaxIdleTimeout:        cfg.IdleTimeout,
			KeepAlivePeriod:       cfg.KeepAlive,
			MaxIncomingUniStreams: 1024,
		},
		resolver: resolver,
		udp:      udp,
		qt:       &quic.Transport{Conn: udp},
		addrs:    addrs,
		conns:    make(map[string]*peerConn),
		handlers: make(map[string]interfaces.InboundHandler),
		ctx:      ctx,
		cancel:   cancel,
	}

	t.ln, err = t.qt.Listen(t.serverTLS, t.qconf)
	if err != nil {
		cancel()
		_ = t.qt.Close()
		return nil, fmt.Errorf("quic: listen: %w", err)
	}

	t.wg.Add(1)
	go t.acceptLoop()
	log.Info("QUIC 传输已监听", "addr", udp.LocalAddr().String(), "peer", id.ID().ShortString())
	return t, nil
}

// ============================================================================
//                              interfaces.Transport
// ============================================================================

// Send 实现 interfaces.Transport
//
// 缓存的连接写入失败时重新拨号一次。
func (t *Transport) Send(ctx context.Context, dest interfaces.Destination, env *types.Envelope) error {
	if env == nil || dest.IsEmpty() {
		return fmt.Errorf("%w: empty destination or envelope", interfaces.ErrUnreachable)
	}
	if t.isClosed() {
		return interfaces.ErrTransportClosed
	}

	hosts, err := t.resolve(ctx, dest)
	if err != nil {
		return err
	}

	out := *env
	out.Src = t.id.ID()

	// 依次尝试各候选地址，直到拨通目标节点
	var (
		host string
		pc   *peerConn
	)
	for _, h := range hosts {
		c, cerr := t.connect(ctx, h)
		switch {
		case cerr != nil:
			err = cerr
		case !dest.PeerID.IsEmpty() && c.remote != dest.PeerID:
			err = fmt.Errorf("%w: %w: want %s, got %s", interfaces.ErrUnreachable, ErrPeerIDMismatch,
				dest.PeerID.ShortString(), c.remote.ShortString())
		default:
			host, pc = h, c
		}
		if pc != nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("地址不可用，尝试下一个", "addr", h, "err", err)
	}
	if pc == nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if pc, err = t.connect(ctx, host); err != nil {
				return err
			}
			if !dest.PeerID.IsEmpty() && pc.remote != dest.PeerID {
				return fmt.Errorf("%w: %w", interfaces.ErrUnreachable, ErrPeerIDMismatch)
			}
		}
		if lastErr = t.write(ctx, pc.conn, &out); lastErr == nil {
			return nil
		}
		t.dropConn(host, pc)
		if ctx.Err() != nil {
			break
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", interfaces.ErrUnreachable, lastErr)
}

// SetHandler 实现 interfaces.Transport
func (t *Transport) SetHandler(protocol string, h interfaces.InboundHandler) {
	t.hmu.Lock()
	defer t.hmu.Unlock()
	if h == nil {
		delete(t.handlers, protocol)
		return
	}
	t.handlers[protocol] = h
}

// LocalAddrs 实现 interfaces.Transport
//
// 监听通配地址时返回各接口地址，不返回 0.0.0.0。
func (t *Transport) LocalAddrs() []types.EndpointAddress {
	local, _ := t.udp.LocalAddr().(*net.UDPAddr)
	return advertisedAddrs(t.cfg.AnnounceAddrs, local)
}

// Close 实现 interfaces.Transport
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conns := t.conns
	t.conns = make(map[string]*peerConn)
	t.mu.Unlock()

	t.cancel()
	var err error
	for _, pc := range conns {
		err = multierr.Append(err, pc.conn.CloseWithError(0, "closing"))
	}
	err = multierr.Append(err, t.ln.Close())
	err = multierr.Append(err, t.qt.Close())
	t.wg.Wait()
	return err
}

// ============================================================================
//                              出站
// ============================================================================

// resolve 把目标解析为候选 host:port 列表
//
// 入站学到的地址优先，其次是 Resolver 返回的 quic 地址。
func (t *Transport) resolve(ctx context.Context, dest interfaces.Destination) ([]string, error) {
	if dest.PeerID.IsEmpty() {
		host, err := hostOf(dest.Address)
		if err != nil {
			return nil, err
		}
		return []string{host}, nil
	}
	if host, ok := t.addrs.Get(dest.PeerID); ok {
		return []string{host}, nil
	}
	if t.resolver == nil {
		return nil, fmt.Errorf("%w: no address for %s", interfaces.ErrUnreachable, dest.PeerID.ShortString())
	}
	addrs, err := t.resolver.Resolve(ctx, dest.PeerID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", interfaces.ErrUnreachable, dest.PeerID.ShortString(), err)
	}
	var hosts []string
	for _, a := range addrs {
		if host, err := hostOf(a); err == nil && !slices.Contains(hosts, host) {
			hosts = append(hosts, host)
		}
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("%w: no quic address for %s", interfaces.ErrUnreachable, dest.PeerID.ShortString())
	}
	return hosts, nil
}

func hostOf(addr types.EndpointAddress) (string, error) {
	if s := addr.Scheme(); s != "" && s != Scheme {
		return "", fmt.Errorf("%w: unsupported address %s", interfaces.ErrUnreachable, addr)
	}
	host := addr.Host()
	if _, _, err := net.SplitHostPort(host); err != nil {
		return "", fmt.Errorf("%w: bad address %s", interfaces.ErrUnreachable, addr)
	}
	return host, nil
}

// connect 返回到 host 的连接，必要时拨号
func (t *Transport) connect(ctx context.Context, host string) (*peerConn, error) {
	t.mu.Lock()
	if pc, ok := t.conns[host]; ok && pc.conn.Context().Err() == nil {
		t.mu.Unlock()
		return pc, nil
	}
	t.mu.Unlock()

	raddr, err := net.ResolveUDPAddr("udp", host)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUnreachable, err)
	}
	conn, err := t.qt.Dial(ctx, raddr, t.clientTLS, t.qconf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dial %s: %v", interfaces.ErrUnreachable, host, err)
	}
	pc := &peerConn{conn: conn, remote: remotePeerID(conn)}
	if existing, ok := t.register(host, pc); !ok {
		_ = conn.CloseWithError(0, "duplicate")
		return existing, nil
	}
	t.wg.Add(1)
	go t.serveConn(host, pc)
	return pc, nil
}

// register 登记连接，已有存活连接时返回该连接与 false
func (t *Transport) register(host string, pc *peerConn) (*peerConn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.conns[host]; ok && existing.conn.Context().Err() == nil {
		return existing, false
	}
	t.conns[host] = pc
	return pc, true
}

func (t *Transport) dropConn(host string, pc *peerConn) {
	t.mu.Lock()
	if t.conns[host] == pc {
		delete(t.conns, host)
	}
	t.mu.Unlock()
	_ = pc.conn.CloseWithError(0, "dropped")
}

func (t *Transport) write(ctx context.Context, conn quic.Connection, env *types.Envelope) error {
	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = stream.SetWriteDeadline(dl)
	}
	if err := message.WriteFrame(stream, env); err != nil {
		stream.CancelWrite(1)
		return err
	}
	return stream.Close()
}

// ============================================================================
//                              入站
// ============================================================================

func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() == nil {
				log.Warn("接受连接失败", "err", err)
			}
			return
		}
		host := conn.RemoteAddr().String()
		pc := &peerConn{conn: conn, remote: remotePeerID(conn)}
		if old, ok := t.register(host, pc); !ok {
			// 双方同时拨号时保留先登记的连接，入站连接仍然读取
			log.Debug("已有到对端的连接", "remote", host, "peer", old.remote.ShortString())
		}
		t.wg.Add(1)
		go t.serveConn(host, pc)
	}
}

func (t *Transport) serveConn(host string, pc *peerConn) {
	defer t.wg.Done()
	for {
		stream, err := pc.conn.AcceptUniStream(t.ctx)
		if err != nil {
			t.mu.Lock()
			if t.conns[host] == pc {
				delete(t.conns, host)
			}
			t.mu.Unlock()
			return
		}
		t.wg.Add(1)
		go t.readStream(host, pc, stream)
	}
}

func (t *Transport) readStream(host string, pc *peerConn, stream quic.ReceiveStream) {
	defer t.wg.Done()
	_ = stream.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))

	env, err := message.ReadFrame(stream)
	if err != nil {
		stream.CancelRead(1)
		log.Debug("读取帧失败", "remote", host, "err", err)
		return
	}
	if pc.remote.IsEmpty() || env.Src != pc.remote {
		log.Warn("丢弃源 ID 与证书不符的消息", "remote", host, "src", env.Src.ShortString(), "cert", pc.remote.ShortString())
		return
	}
	t.addrs.Add(env.Src, host)

	t.hmu.RLock()
	h := t.handlers[env.Protocol]
	t.hmu.RUnlock()
	if h == nil {
		log.Debug("丢弃未注册协议的消息", "protocol", env.Protocol, "src", env.Src.ShortString())
		return
	}
	if err := h(t.ctx, env); err != nil {
		log.Debug("入站处理失败", "protocol", env.Protocol, "src", env.Src.ShortString(), "err", err)
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
