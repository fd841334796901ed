package peerview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/internal/core/peerview/message"
)

// TestPeerview_GetPeerForTargetHash 测试本 cluster 内按距离选择负责节点
func TestPeerview_GetPeerForTargetHash(t *testing.T) {
	x := newTestNode(t, "x", testConfig())
	y := newTestNode(t, "y", testConfig())

	_, err := x.GetPeerForTargetHash(bighash.FromUint64(2))
	assert.ErrorIs(t, err, ErrNotFound)

	x.placeAt(t, 5, 3)
	y.placeAt(t, 5, 7)
	require.NoError(t, x.HandleMessage(context.Background(), envelope(t, y.localID, y.statusPong(message.PongStatus))))

	tests := []struct {
		hash uint64
		want string
	}{
		{2, "x"},
		{5, "x"}, // 距离相同时保留自身
		{6, "y"},
		{0, "y"}, // 7 越过上界回绕到 0
	}
	for _, tt := range tests {
		got, err := x.GetPeerForTargetHash(bighash.FromUint64(tt.hash))
		require.NoError(t, err)
		assert.Equal(t, peerID(tt.want), got.PeerID, "hash %d", tt.hash)
	}

	// 其他 cluster 没有成员
	_, err = x.GetPeerForTargetHash(bighash.FromUint64(12))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = x.GetPeerForTargetHash(bighash.FromUint64(16))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// TestPeerview_GetAssociatePeer 测试其他 cluster 的代表节点
func TestPeerview_GetAssociatePeer(t *testing.T) {
	cfg := testConfig()
	cfg.ClustersCount = 4
	x := newTestNode(t, "x", cfg)
	x.placeAt(t, 5, 1)

	_, err := x.GetAssociatePeer(4)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = x.GetAssociatePeer(-1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = x.GetAssociatePeer(2)
	assert.ErrorIs(t, err, ErrNotFound)

	x.lock()
	for _, name := range []string{"a", "b"} {
		require.NoError(t, x.reg.add(&pve{PVEInfo: PVEInfo{
			PeerID:     peerID(name),
			TargetHash: bighash.FromUint64(13),
			ExpiresAt:  Forever,
		}}))
	}
	x.unlock()

	// cluster 2 为空，向后找到 cluster 3 最早登记的成员
	got, err := x.GetAssociatePeer(2)
	require.NoError(t, err)
	assert.Equal(t, peerID("a"), got.PeerID)

	got, err = x.GetAssociatePeer(0)
	require.NoError(t, err)
	assert.Equal(t, x.localID, got.PeerID)
}
