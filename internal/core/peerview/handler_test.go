package peerview

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/pkg/types"
)

func addressRequest(id types.PeerID) *message.AddressRequest {
	return &message.AddressRequest{
		PeerAdv:    &types.PeerAdvertisement{PeerID: id, Rendezvous: true},
		PeerAdvGen: "gen-1",
	}
}

// TestHandleMessage_Malformed 测试格式错误的消息被拒绝
func TestHandleMessage_Malformed(t *testing.T) {
	n := newTestNode(t, "x", testConfig())

	err := n.HandleMessage(context.Background(), &types.Envelope{
		Protocol: message.ProtocolName,
		Src:      peerID("y"),
		Element:  message.ElementPing,
		Body:     []byte("<jxta:PeerviewPing><SrcPeerID>"),
	})
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, n.HandleMessage(context.Background(), nil), ErrInvalidMessage)
}

// TestHandleAddressRequest_RateLimited 测试同一来源的地址请求被限速
func TestHandleAddressRequest_RateLimited(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, "x", testConfig())
	n.placeAt(t, 5, 3)

	env := envelope(t, peerID("y"), addressRequest(peerID("y")))
	for i := 0; i < n.cfg.AddressRequestBurst; i++ {
		require.NoError(t, n.HandleMessage(ctx, env))
	}
	assert.ErrorIs(t, n.HandleMessage(ctx, env), ErrBusy)

	// 其他来源不受影响
	require.NoError(t, n.HandleMessage(ctx, envelope(t, peerID("z"), addressRequest(peerID("z")))))
}

// TestHandleAddressRequest_NotMember 测试未加入时拒绝分配
func TestHandleAddressRequest_NotMember(t *testing.T) {
	n := newTestNode(t, "x", testConfig())
	err := n.HandleMessage(context.Background(), envelope(t, peerID("y"), addressRequest(peerID("y"))))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, n.tr.take())
}

// TestHandleAddressRequest_KnownPeerKeepsTarget 测试已知节点沿用原地址
func TestHandleAddressRequest_KnownPeerKeepsTarget(t *testing.T) {
	ctx := context.Background()
	x := newTestNode(t, "x", testConfig())
	y := newTestNode(t, "y", testConfig())
	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 6)
	require.NoError(t, x.HandleMessage(ctx, envelope(t, y.localID, y.statusPong(message.PongStatus))))
	x.tr.take()

	require.NoError(t, x.HandleMessage(ctx, envelope(t, y.localID, addressRequest(y.localID))))
	msgs := x.tr.messages(t)
	require.Len(t, msgs, 1)
	assign, ok := msgs[0].(*message.AddressAssign)
	require.True(t, ok)
	assert.Equal(t, uint64(6), assign.TargetHash.Uint64())
	assert.Equal(t, uint64(5), assign.InstanceMask.Uint64())
}

// TestHandleAddressAssign_Rejected 测试不符合当前状态的地址分配
func TestHandleAddressAssign_Rejected(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, "y", testConfig())
	assign := func(mask uint64) *types.Envelope {
		return envelope(t, peerID("x"), &message.AddressAssign{
			PeerID:       peerID("x"),
			InstanceMask: bighash.FromUint64(mask),
			TargetHash:   bighash.FromUint64(9),
		})
	}

	assert.ErrorIs(t, n.HandleMessage(ctx, assign(5)), ErrInvalidMessage)

	n.lock()
	n.joinLocked(bighash.FromUint64(5))
	n.unlock()
	assert.ErrorIs(t, n.HandleMessage(ctx, assign(7)), ErrMaskMismatch)
	require.NoError(t, n.HandleMessage(ctx, assign(5)))
	assert.Equal(t, StateAnnouncing, n.State())
	assert.ErrorIs(t, n.HandleMessage(ctx, assign(5)), ErrBusy)
}

// TestHandlePing 测试 Ping 的目标匹配与广告回带
func TestHandlePing(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, "x", testConfig())
	n.placeAt(t, 5, 3)

	ping := &message.Ping{SrcPeerID: peerID("y"), DstPeerID: n.localID, AdvRequest: true}
	require.NoError(t, n.HandleMessage(ctx, envelope(t, peerID("y"), ping)))
	msgs := n.tr.messages(t)
	require.Len(t, msgs, 1)
	pong, ok := msgs[0].(*message.Pong)
	require.True(t, ok)
	assert.Equal(t, message.PongStatus, pong.Action)
	assert.NotNil(t, pong.PeerAdv)

	// 广告代数一致时回短格式
	n.lock()
	gen := n.selfAdvGen
	n.unlock()
	ping = &message.Ping{SrcPeerID: peerID("y"), DstPeerID: n.localID, DstAdvGen: gen}
	require.NoError(t, n.HandleMessage(ctx, envelope(t, peerID("y"), ping)))
	msgs = n.tr.messages(t)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].(*message.Pong).PeerAdv)

	// 按地址寻址
	ping = &message.Ping{SrcPeerID: peerID("y"), DstAddress: n.tr.addrs[0]}
	require.NoError(t, n.HandleMessage(ctx, envelope(t, peerID("y"), ping)))
	assert.Len(t, n.tr.take(), 1)

	// 种子以对外地址寻址，本地只监听通配地址
	ping = &message.Ping{SrcPeerID: peerID("y"), DstAddress: "quic://10.0.0.1:9700"}
	require.NoError(t, n.HandleMessage(ctx, envelope(t, peerID("y"), ping)))
	assert.Len(t, n.tr.take(), 1)

	// 自己发出的 Ping 不回复
	ping = &message.Ping{SrcPeerID: n.localID, DstAddress: "quic://10.0.0.1:9700"}
	require.NoError(t, n.HandleMessage(ctx, envelope(t, n.localID, ping)))
	assert.Empty(t, n.tr.take())

	// 不是发给本节点的 Ping 不回复
	ping = &message.Ping{SrcPeerID: peerID("y"), DstPeerID: peerID("other")}
	require.NoError(t, n.HandleMessage(ctx, envelope(t, peerID("y"), ping)))
	assert.Empty(t, n.tr.take())
}

// TestPeerview_ChooseCluster 测试地址分配时的 cluster 选择
func TestPeerview_ChooseCluster(t *testing.T) {
	cfg := testConfig()
	cfg.ClustersCount = 4

	tests := []struct {
		name     string
		self     uint64
		occupied []int
		want     int
	}{
		{"全部为空取最远", 1, nil, 3},
		{"最远已占用", 1, []int{3}, 2},
		{"向近处收缩", 1, []int{2, 3}, 1},
		{"全部占用取本 cluster", 1, []int{1, 2, 3}, 0},
		{"自身在末尾", 13, nil, 0},
		{"自身在末尾跳过已占用", 13, []int{0}, 1},
		{"自身在末尾向后收缩", 13, []int{0, 1}, 2},
		{"自身在末尾全部占用", 13, []int{0, 1, 2}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNode(t, "x", cfg)
			n.placeAt(t, 5, tt.self)
			n.lock()
			for _, c := range tt.occupied {
				require.NoError(t, n.reg.add(&pve{PVEInfo: PVEInfo{
					PeerID:     peerID(fmt.Sprintf("c%d", c)),
					TargetHash: bighash.FromUint64(uint64(c*4 + 1)),
					ExpiresAt:  Forever,
				}}))
			}
			got := n.chooseClusterLocked()
			n.unlock()
			assert.Equal(t, tt.want, got)
		})
	}
}
