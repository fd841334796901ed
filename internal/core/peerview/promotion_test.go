package peerview

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// pair 让 x 与 y 互相登记并清空出站消息
func pair(t *testing.T, x, y *testNode) {
	t.Helper()
	require.NoError(t, x.HandleMessage(context.Background(), envelope(t, y.localID, y.statusPong(message.PongStatus))))
	for _, err := range deliver(t, x, y) {
		require.NoError(t, err)
	}
	require.True(t, x.Contains(y.localID))
	require.True(t, y.Contains(x.localID))
	x.tr.take()
	y.tr.take()
}

func pongs(t *testing.T, n *testNode, action message.PongAction) []*message.Pong {
	t.Helper()
	var out []*message.Pong
	for _, m := range n.tr.messages(t) {
		if pong, ok := m.(*message.Pong); ok && pong.Action == action {
			out = append(out, pong)
		}
	}
	return out
}

// TestPeerview_AddPromotesBeforeInviting 测试 Add 先推举再邀请
func TestPeerview_AddPromotesBeforeInviting(t *testing.T) {
	c := peerID("client")
	roster := &fakeRoster{clients: []interfaces.Client{{PeerID: c}}}
	x := newTestNode(t, "x", testConfig(), func(d *Deps) { d.Roster = roster })
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 9)
	pair(t, x, y)

	x.add(x.epoch[actAdd])
	for _, s := range x.tr.sent {
		assert.Equal(t, y.localID, s.dest.PeerID)
	}
	for _, err := range deliver(t, x, y) {
		require.NoError(t, err)
	}

	// y 回复推举并暂停自己的邀请
	reply := y.tr.sent
	require.Len(t, reply, 1)
	for _, err := range deliver(t, y, x) {
		require.NoError(t, err)
	}
	y.add(y.epoch[actAdd])
	assert.Empty(t, y.tr.take())

	x.add(x.epoch[actAdd])
	invites := pongs(t, x, message.PongInvite)
	require.Len(t, invites, 1)
	assert.Empty(t, x.candidates)
	assert.False(t, x.voting)
}

// TestPeerview_PromoteCarriesCandidates 测试 PROMOTE Pong 携带候选
func TestPeerview_PromoteCarriesCandidates(t *testing.T) {
	c := peerID("client")
	roster := &fakeRoster{clients: []interfaces.Client{{PeerID: c}}}
	x := newTestNode(t, "x", testConfig(), func(d *Deps) { d.Roster = roster })
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 9)
	pair(t, x, y)

	x.add(x.epoch[actAdd])
	promotes := pongs(t, x, message.PongPromote)
	require.Len(t, promotes, 1)
	require.Len(t, promotes[0].Candidates, 1)
	assert.Equal(t, c, promotes[0].Candidates[0].PeerID)
	assert.Empty(t, pongs(t, x, message.PongInvite))
}

// TestPeerview_PromotionBacksOff 测试对方也在招募时放弃本轮候选
func TestPeerview_PromotionBacksOff(t *testing.T) {
	roster := &fakeRoster{clients: []interfaces.Client{{PeerID: peerID("client")}}}
	x := newTestNode(t, "x", testConfig(), func(d *Deps) { d.Roster = roster })
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 9)
	pair(t, x, y)

	x.add(x.epoch[actAdd])
	x.tr.take()
	require.True(t, x.voting)

	rival := y.statusPong(message.PongPromote)
	rival.Candidates = []message.PeerInfo{{PeerID: peerID("other"), Cluster: -1}}
	require.NoError(t, x.HandleMessage(context.Background(), envelope(t, y.localID, rival)))
	assert.Empty(t, x.candidates)
	assert.Empty(t, x.tr.take())

	x.add(x.epoch[actAdd])
	assert.Empty(t, pongs(t, x, message.PongInvite))
	assert.False(t, x.voting)
}

// TestPeerview_PollExpires 测试推举超时后照常邀请
func TestPeerview_PollExpires(t *testing.T) {
	roster := &fakeRoster{clients: []interfaces.Client{{PeerID: peerID("client")}}}
	x := newTestNode(t, "x", testConfig(), func(d *Deps) { d.Roster = roster })
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 9)
	pair(t, x, y)

	x.add(x.epoch[actAdd])
	x.tr.take()
	x.add(x.epoch[actAdd])
	assert.Empty(t, pongs(t, x, message.PongInvite))

	x.clk.Add(x.cfg.VotingExpiration)
	x.add(x.epoch[actAdd])
	assert.Len(t, pongs(t, x, message.PongInvite), 1)
}

// TestPeerview_AutoCycleDemotesSurplus 测试 cluster 富余的成员自动降级
func TestPeerview_AutoCycleDemotesSurplus(t *testing.T) {
	cfg := testConfig()
	cfg.ClusterMembers = 1
	cfg.AutoCycle = time.Minute
	x := newTestNode(t, "x", cfg)
	y := newTestNode(t, "y", cfg)
	z := newTestNode(t, "z", cfg)
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 2)
	z.placeAt(t, 5, 9)
	pair(t, x, y)
	pair(t, x, z)

	// 自身重新登记，排在 y 之后
	x.lock()
	require.NoError(t, x.createSelfLocked(bighash.FromUint64(3)))
	x.unlock()

	rec := &recorder{}
	require.NoError(t, x.AddEventListener("rec", rec.listen))
	for i := 0; i < minSwitchRounds; i++ {
		x.autoCycle(x.epoch[actAutoCycle])
		require.Equal(t, StateMaintenance, x.State())
	}
	x.autoCycle(x.epoch[actAutoCycle])
	assert.Equal(t, StatePassive, x.State())
	assert.Len(t, pongs(t, x, message.PongDemote), 2)
	assert.Equal(t, 1, rec.count(EventDemote, x.localID))

	// 降级后活动以新的 epoch 继续
	assert.Positive(t, x.sched.pending())
}

// TestPeerview_AutoCycleKeepsEarlyMembers 测试最早登记的成员不降级
func TestPeerview_AutoCycleKeepsEarlyMembers(t *testing.T) {
	cfg := testConfig()
	cfg.ClusterMembers = 1
	cfg.AutoCycle = time.Minute
	x := newTestNode(t, "x", cfg)
	y := newTestNode(t, "y", cfg)
	z := newTestNode(t, "z", cfg)
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 2)
	z.placeAt(t, 5, 9)
	pair(t, x, y)
	pair(t, x, z)

	for i := 0; i < 2*minSwitchRounds; i++ {
		x.autoCycle(x.epoch[actAutoCycle])
	}
	assert.Equal(t, StateMaintenance, x.State())
}

// TestPeerview_AutoCyclePromotesLonelyPassive 测试长时间未见 rendezvous 的 Passive 节点自行加入
func TestPeerview_AutoCyclePromotesLonelyPassive(t *testing.T) {
	cfg := testConfig()
	cfg.AutoCycle = time.Minute
	x := newTestNode(t, "x", cfg)
	y := newTestNode(t, "y", cfg)
	y.placeAt(t, 5, 9)

	// 收到 rendezvous 的 Pong 期间保持 Passive
	require.NoError(t, x.HandleMessage(context.Background(), envelope(t, y.localID, y.statusPong(message.PongStatus))))
	for i := 0; i <= cfg.LonelinessFactor+1; i++ {
		x.autoCycle(x.epoch[actAutoCycle])
	}
	require.Equal(t, StatePassive, x.State())

	x.clk.Add(2 * cfg.AutoCycle)
	for i := 0; i < cfg.LonelinessFactor; i++ {
		x.autoCycle(x.epoch[actAutoCycle])
		require.Equal(t, StatePassive, x.State())
	}
	x.autoCycle(x.epoch[actAutoCycle])
	assert.Equal(t, StateLocating, x.State())
}

// TestPeerview_AutoCycleDisabled 测试 AutoCycle 为 0 时不调度
func TestPeerview_AutoCycleDisabled(t *testing.T) {
	x := newTestNode(t, "x", testConfig())
	assert.Zero(t, x.epoch[actAutoCycle])
}
