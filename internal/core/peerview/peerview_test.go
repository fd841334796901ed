package peerview

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

// TestNew_Invalid 测试非法参数
func TestNew_Invalid(t *testing.T) {
	cfg := testConfig()
	_, err := New(cfg, Deps{LocalID: peerID("x")})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(cfg, Deps{Transport: &fakeTransport{}, Scheduler: &manualScheduler{}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	cfg.ClustersCount = 0
	_, err = New(cfg, Deps{LocalID: peerID("x"), Transport: &fakeTransport{}, Scheduler: &manualScheduler{}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	for _, mutate := range []func(*Config){
		func(c *Config) { c.AutoCycle = -time.Second },
		func(c *Config) { c.LonelinessFactor = -1 },
		func(c *Config) { c.VotingExpiration = 0 },
		func(c *Config) { c.VotingWait = 0 },
	} {
		cfg := testConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidArgument)
	}
}

// TestPeerview_Lifecycle 测试启动、定位、自建实例与退出
func TestPeerview_Lifecycle(t *testing.T) {
	n := newTestNode(t, "x", testConfig())
	rec := &recorder{}
	require.NoError(t, n.AddEventListener("rec", rec.listen))

	assert.Equal(t, StatePassive, n.State())
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)
	assert.NotNil(t, n.tr.handler)

	require.NoError(t, n.SetActive(true))
	assert.Equal(t, StateLocating, n.State())

	// 没有种子，探测耗尽后自建实例
	for i := 0; i <= n.cfg.MaxLocateProbes; i++ {
		n.locate(n.epoch[actLocate])
	}
	assert.Equal(t, StateMaintenance, n.State())
	self, ok := n.SelfPVE()
	require.True(t, ok)
	assert.Equal(t, n.localID, self.PeerID)
	assert.Equal(t, Forever, self.ExpiresAt)
	_, hasMask := n.InstanceMask()
	assert.True(t, hasMask)
	assert.Equal(t, 1, rec.count(EventAdd, n.localID))

	require.NoError(t, n.SetActive(false))
	assert.Equal(t, StatePassive, n.State())
	_, ok = n.SelfPVE()
	assert.False(t, ok)
	assert.Equal(t, 1, rec.count(EventRemove, n.localID))
	assert.Equal(t, 1, rec.count(EventDemote, n.localID))

	require.NoError(t, n.Stop(context.Background()))
	assert.Equal(t, StateStopped, n.State())
	assert.Nil(t, n.tr.handler)
	assert.ErrorIs(t, n.SetActive(true), ErrNotStarted)
	assert.ErrorIs(t, n.Stop(context.Background()), ErrNotStarted)
}

// TestPeerview_LocatePingsSeeds 测试 Locate 向种子发送要求广告的 Ping
func TestPeerview_LocatePingsSeeds(t *testing.T) {
	seed := interfaces.ToAddress("mem://seed")
	n := newTestNode(t, "x", testConfig(), func(d *Deps) {
		d.Seeds = []interfaces.Destination{seed}
	})
	require.NoError(t, n.SetActive(true))

	n.locate(n.epoch[actLocate])
	msgs := n.tr.messages(t)
	require.Len(t, msgs, 1)
	ping, ok := msgs[0].(*message.Ping)
	require.True(t, ok)
	assert.Equal(t, seed.Address, ping.DstAddress)
	assert.True(t, ping.AdvRequest)
	assert.Equal(t, 1, n.locateProbes)
}

// TestPeerview_JoinExistingInstance 测试 4 位地址空间中的完整加入流程
//
// X 位于 hash 3（半径 2），Y 经 Addressing 被分配到空的 cluster 1。
func TestPeerview_JoinExistingInstance(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	x := newTestNode(t, "x", cfg)
	y := newTestNode(t, "y", cfg)
	x.placeAt(t, 5, 3)

	xs, _ := x.SelfPVE()
	assert.Equal(t, uint64(2), xs.TargetHashRadius.Uint64())
	assert.Equal(t, 0, xs.Cluster)

	require.NoError(t, y.SetActive(true))
	require.NoError(t, y.HandleMessage(ctx, envelope(t, x.localID, x.statusPong(message.PongStatus))))
	assert.Equal(t, StateAddressing, y.State())
	assert.True(t, y.Contains(x.localID))
	mask, _ := y.InstanceMask()
	assert.Equal(t, uint64(5), mask.Uint64())

	y.addressing(y.epoch[actAddressing])
	for _, err := range deliver(t, y, x) {
		require.NoError(t, err)
	}
	for _, err := range deliver(t, x, y) {
		require.NoError(t, err)
	}
	assert.Equal(t, StateAnnouncing, y.State())

	ys, ok := y.SelfPVE()
	require.True(t, ok)
	assert.Equal(t, 1, ys.Cluster)
	assert.GreaterOrEqual(t, ys.TargetHash.Uint64(), uint64(8))
	assert.LessOrEqual(t, ys.TargetHash.Uint64(), uint64(15))

	y.announce(y.epoch[actAnnounce])
	assert.Equal(t, StateMaintenance, y.State())
	for _, err := range deliver(t, y, x) {
		require.NoError(t, err)
	}

	assoc, err := x.GetAssociatePeer(1)
	require.NoError(t, err)
	assert.Equal(t, y.localID, assoc.PeerID)
	own, err := x.GetAssociatePeer(0)
	require.NoError(t, err)
	assert.Equal(t, x.localID, own.PeerID)

	// X 回复的 INVITE 只刷新 Y 已有的条目
	for _, err := range deliver(t, x, y) {
		require.NoError(t, err)
	}
	assert.ElementsMatch(t, x.GlobalView(), y.GlobalView())
}

// TestPeerview_SmallerMaskWins 测试两个实例相遇时掩码较小的一方胜出
func TestPeerview_SmallerMaskWins(t *testing.T) {
	ctx := context.Background()
	x := newTestNode(t, "x", testConfig())
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 9, 3)
	y.placeAt(t, 3, 10)
	rec := &recorder{}
	require.NoError(t, x.AddEventListener("rec", rec.listen))

	xp := x.statusPong(message.PongStatus)
	yp := y.statusPong(message.PongStatus)

	// 掩码较小的一方保持不变并邀请对方
	err := y.HandleMessage(ctx, envelope(t, x.localID, xp))
	assert.ErrorIs(t, err, ErrMaskMismatch)
	msgs := y.tr.messages(t)
	require.Len(t, msgs, 1)
	invite, ok := msgs[0].(*message.Pong)
	require.True(t, ok)
	assert.Equal(t, message.PongInvite, invite.Action)
	assert.Equal(t, uint64(3), invite.InstanceMask.Uint64())
	assert.Equal(t, StateMaintenance, y.State())

	// 掩码较大的一方放弃自身实例
	require.NoError(t, x.HandleMessage(ctx, envelope(t, y.localID, yp)))
	assert.Equal(t, StateAddressing, x.State())
	mask, _ := x.InstanceMask()
	assert.Equal(t, uint64(3), mask.Uint64())
	_, ok = x.SelfPVE()
	assert.False(t, ok)
	assert.True(t, x.Contains(y.localID))
	assert.Equal(t, 1, rec.count(EventRemove, x.localID))
}

// TestPeerview_PassiveOnlyAcceptsInvite 测试 Passive 状态只响应 INVITE
func TestPeerview_PassiveOnlyAcceptsInvite(t *testing.T) {
	ctx := context.Background()
	x := newTestNode(t, "x", testConfig())
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)

	require.NoError(t, y.HandleMessage(ctx, envelope(t, x.localID, x.statusPong(message.PongStatus))))
	assert.Equal(t, StatePassive, y.State())
	assert.False(t, y.Contains(x.localID))

	require.NoError(t, y.HandleMessage(ctx, envelope(t, x.localID, x.statusPong(message.PongInvite))))
	assert.Equal(t, StateAddressing, y.State())
	assert.True(t, y.Contains(x.localID))
}

// TestPeerview_ExpiredPVERemovedOnce 测试过期条目恰好被移除一次
func TestPeerview_ExpiredPVERemovedOnce(t *testing.T) {
	ctx := context.Background()
	x := newTestNode(t, "x", testConfig())
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 9)
	rec := &recorder{}
	require.NoError(t, x.AddEventListener("rec", rec.listen))

	require.NoError(t, x.HandleMessage(ctx, envelope(t, y.localID, y.statusPong(message.PongStatus))))
	require.True(t, x.Contains(y.localID))
	x.tr.take()

	// 刚加入的条目在 PingDue 内到期，维护时先 Ping
	x.maintain(x.epoch[actMaintain])
	var pinged bool
	for _, m := range x.tr.messages(t) {
		if ping, ok := m.(*message.Ping); ok && ping.DstPeerID == y.localID {
			pinged = true
		}
	}
	assert.True(t, pinged)

	x.clk.Add(x.cfg.PingDue)
	x.maintain(x.epoch[actMaintain])
	x.maintain(x.epoch[actMaintain])

	assert.False(t, x.Contains(y.localID))
	assert.Equal(t, 1, rec.count(EventAdd, y.localID))
	assert.Equal(t, 1, rec.count(EventRemove, y.localID))
}

// TestPeerview_ReferralsDeduplicated 测试推荐节点去重
func TestPeerview_ReferralsDeduplicated(t *testing.T) {
	ctx := context.Background()
	x := newTestNode(t, "x", testConfig())
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 9)
	z := peerID("z")

	pong := func() *message.Pong {
		p := y.statusPong(message.PongStatus)
		p.Partners = append(p.Partners,
			message.PeerInfo{PeerID: z, Cluster: -1, TargetHash: bighash.FromUint64(11)},
			message.PeerInfo{PeerID: x.localID, Cluster: -1, TargetHash: bighash.FromUint64(3)},
		)
		return p
	}
	require.NoError(t, x.HandleMessage(ctx, envelope(t, y.localID, pong())))
	require.NoError(t, x.HandleMessage(ctx, envelope(t, y.localID, pong())))
	assert.Equal(t, []types.PeerID{z}, x.referrals)
	x.tr.take()

	x.maintain(x.epoch[actMaintain])
	assert.Equal(t, 1, pingsTo(t, x, z))

	// 上一轮已 Ping 的推荐在下一轮之前仍参与去重
	require.NoError(t, x.HandleMessage(ctx, envelope(t, y.localID, pong())))
	x.tr.take()
	x.maintain(x.epoch[actMaintain])
	assert.Equal(t, 0, pingsTo(t, x, z))
	assert.Empty(t, x.referrals)
}

// TestPeerview_ReferralQueueBounded 测试推荐队列有容量上限
func TestPeerview_ReferralQueueBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPingProbes = 2
	x := newTestNode(t, "x", cfg)
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 9)

	pong := y.statusPong(message.PongStatus)
	for i := 0; i < 50; i++ {
		pong.Associates = append(pong.Associates, message.PeerInfo{
			PeerID:     peerID(fmt.Sprintf("r%d", i)),
			Cluster:    -1,
			TargetHash: bighash.FromUint64(uint64(i % 16)),
		})
	}
	require.NoError(t, x.HandleMessage(context.Background(), envelope(t, y.localID, pong)))
	limit := cfg.MaxPingProbes * referralQueueFactor
	assert.Len(t, x.referrals, limit)
	assert.Len(t, x.referralSet, limit)
	x.tr.take()

	// 每轮 Ping 至多 MaxPingProbes 个，下一轮出队
	x.maintain(x.epoch[actMaintain])
	assert.Len(t, x.referrals, limit)
	x.maintain(x.epoch[actMaintain])
	assert.Len(t, x.referrals, limit-cfg.MaxPingProbes)
	assert.Len(t, x.referralSet, limit-cfg.MaxPingProbes)
}

// TestPeerview_RestartInvalidatesOldTasks 测试停止后旧活动任务失效
func TestPeerview_RestartInvalidatesOldTasks(t *testing.T) {
	ctx := context.Background()
	x := newTestNode(t, "x", testConfig())
	x.placeAt(t, 5, 3)
	stale := x.epoch[actMaintain]

	require.NoError(t, x.Stop(ctx))
	require.NoError(t, x.Start(ctx))
	require.NoError(t, x.SetActive(true))
	x.placeAt(t, 5, 3)
	x.tr.take()

	pending := x.sched.pending()
	x.maintain(stale)
	assert.Equal(t, pending, x.sched.pending())
	assert.Empty(t, x.tr.take())

	// 放弃实例同样使旧任务失效
	stale = x.epoch[actMaintain]
	x.lock()
	x.resetInstanceLocked()
	x.unlock()
	x.placeAt(t, 5, 3)
	x.maintain(stale)
	assert.Equal(t, pending, x.sched.pending())
}

// TestPeerview_DemotePongRemovesPVE 测试 DEMOTE 或 edge 状态的 Pong 移除条目
func TestPeerview_DemotePongRemovesPVE(t *testing.T) {
	ctx := context.Background()
	x := newTestNode(t, "x", testConfig())
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 9)

	// 互相登记：X 收到 Y 的 STATUS 后回 INVITE
	require.NoError(t, x.HandleMessage(ctx, envelope(t, y.localID, y.statusPong(message.PongStatus))))
	for _, err := range deliver(t, x, y) {
		require.NoError(t, err)
	}
	require.True(t, x.Contains(y.localID))
	require.True(t, y.Contains(x.localID))

	require.NoError(t, y.SetActive(false))
	for _, err := range deliver(t, y, x) {
		require.NoError(t, err)
	}
	assert.False(t, x.Contains(y.localID))

	z := newTestNode(t, "z", testConfig())
	z.placeAt(t, 5, 12)
	require.NoError(t, x.HandleMessage(ctx, envelope(t, z.localID, z.statusPong(message.PongStatus))))
	require.True(t, x.Contains(z.localID))

	edge := z.statusPong(message.PongStatus)
	edge.RdvState = message.RdvStateEdge
	require.NoError(t, x.HandleMessage(ctx, envelope(t, z.localID, edge)))
	assert.False(t, x.Contains(z.localID))
}

// TestPeerview_AddInvitesRosterClients 测试 Add 邀请名册中的客户端
func TestPeerview_AddInvitesRosterClients(t *testing.T) {
	c := peerID("client")
	roster := &fakeRoster{clients: []interfaces.Client{{PeerID: c}, {PeerID: peerID("x")}}}
	x := newTestNode(t, "x", testConfig(), func(d *Deps) { d.Roster = roster })
	x.placeAt(t, 5, 3)

	x.add(x.epoch[actAdd])
	var invited int
	for _, m := range x.tr.messages(t) {
		if pong, ok := m.(*message.Pong); ok && pong.Action == message.PongInvite {
			invited++
			assert.NotNil(t, pong.PeerAdv)
		}
	}
	assert.Equal(t, 1, invited)
}

// TestPeerview_AddressingGivesUp 测试长时间未获分配时回到 Locating
func TestPeerview_AddressingGivesUp(t *testing.T) {
	ctx := context.Background()
	x := newTestNode(t, "x", testConfig())
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)

	require.NoError(t, y.SetActive(true))
	require.NoError(t, y.HandleMessage(ctx, envelope(t, x.localID, x.statusPong(message.PongStatus))))
	for i := 0; i < y.cfg.MaxAddressingAttempts; i++ {
		y.addressing(y.epoch[actAddressing])
		assert.Equal(t, StateAddressing, y.State())
	}
	y.addressing(y.epoch[actAddressing])
	assert.Equal(t, StateLocating, y.State())
	assert.False(t, y.Contains(x.localID))
	_, hasMask := y.InstanceMask()
	assert.False(t, hasMask)
}

func pingsTo(t *testing.T, n *testNode, id types.PeerID) int {
	t.Helper()
	count := 0
	for _, m := range n.tr.messages(t) {
		if ping, ok := m.(*message.Ping); ok && ping.DstPeerID == id {
			count++
		}
	}
	return count
}
