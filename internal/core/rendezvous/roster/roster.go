// Package roster 维护 rendezvous 客户端租约表
//
// 客户端在租约有效期内出现在 Clients 中；Add 活动从这里挑选邀请对象。
package roster

import (
	"cmp"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-peerview/internal/util/logger"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

var log = logger.Logger("rendezvous/roster")

// 确保实现了接口
var _ interfaces.Roster = (*Roster)(nil)

var (
	// ErrLeaseNotFound 租约不存在或已过期
	ErrLeaseNotFound = errors.New("roster: lease not found")

	// ErrInvalidLease 租约参数非法
	ErrInvalidLease = errors.New("roster: invalid lease")
)

// DefaultLease 默认租约时长
const DefaultLease = 20 * time.Minute

type lease struct {
	client interfaces.Client
	seq    uint64
}

// Roster 客户端租约表
type Roster struct {
	clock clock.Clock

	mu     sync.Mutex
	leases map[types.PeerID]*lease
	seq    uint64
}

// New 创建租约表
func New(clk clock.Clock) *Roster {
	if clk == nil {
		clk = clock.New()
	}
	return &Roster{clock: clk, leases: make(map[types.PeerID]*lease)}
}

// Add 登记或续约客户端
//
// 已存在的客户端保留首次连接时间，只更新广告与到期时间。
func (r *Roster) Add(id types.PeerID, adv *types.PeerAdvertisement, ttl time.Duration) error {
	if id.IsEmpty() || ttl <= 0 {
		return ErrInvalidLease
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.leases[id]; ok && l.client.LeaseExpires.After(now) {
		l.client.LeaseExpires = now.Add(ttl)
		if adv != nil {
			l.client.Adv = adv.Clone()
		}
		return nil
	}
	r.seq++
	r.leases[id] = &lease{
		client: interfaces.Client{
			PeerID:       id,
			Adv:          adv.Clone(),
			ConnectedAt:  now,
			LeaseExpires: now.Add(ttl),
		},
		seq: r.seq,
	}
	log.Debug("客户端已登记", "peer", id.ShortString(), "ttl", ttl)
	return nil
}

// Renew 续约
func (r *Roster) Renew(id types.PeerID, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidLease
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leases[id]
	if !ok || !l.client.LeaseExpires.After(now) {
		return ErrLeaseNotFound
	}
	l.client.LeaseExpires = now.Add(ttl)
	return nil
}

// Remove 注销客户端
func (r *Roster) Remove(id types.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leases[id]; !ok {
		return false
	}
	delete(r.leases, id)
	return true
}

// Clients 实现 interfaces.Roster
func (r *Roster) Clients() []interfaces.Client {
	now := r.clock.Now()

	r.mu.Lock()
	live := make([]*lease, 0, len(r.leases))
	for _, l := range r.leases {
		if l.client.LeaseExpires.After(now) {
			live = append(live, l)
		}
	}
	r.mu.Unlock()

	slices.SortFunc(live, func(a, b *lease) int {
		if c := a.client.ConnectedAt.Compare(b.client.ConnectedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]interfaces.Client, len(live))
	for i, l := range live {
		out[i] = l.client
		out[i].Adv = l.client.Adv.Clone()
	}
	return out
}

// Prune 清除过期租约，返回清除数量
func (r *Roster) Prune() int {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, l := range r.leases {
		if !l.client.LeaseExpires.After(now) {
			delete(r.leases, id)
			n++
		}
	}
	return n
}

// Len 返回租约数（含未清除的过期租约）
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leases)
}
