package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
)

func newSpace(t *testing.T, bits uint) *bighash.Space {
	t.Helper()
	s, err := bighash.NewSpace(bits)
	require.NoError(t, err)
	return s
}

// TestRing_SmallSpace 测试 [0,16) 两个 cluster 的划分
func TestRing_SmallSpace(t *testing.T) {
	r, err := New(newSpace(t, 4), 2, 4, 2)
	require.NoError(t, err)

	assert.Equal(t, uint64(8), r.Divisor().Uint64())
	assert.Equal(t, uint64(4), r.PeerAddressSpace().Uint64())

	c0, c1 := r.Range(0), r.Range(1)
	assert.Equal(t, uint64(0), c0.Min.Uint64())
	assert.Equal(t, uint64(7), c0.Max.Uint64())
	assert.Equal(t, uint64(4), c0.Mid.Uint64())
	assert.Equal(t, uint64(8), c1.Min.Uint64())
	assert.Equal(t, uint64(15), c1.Max.Uint64())
	assert.Equal(t, uint64(12), c1.Mid.Uint64())

	assert.Equal(t, 0, r.ClusterForHash(bighash.FromUint64(3)))
	assert.Equal(t, 1, r.ClusterForHash(bighash.FromUint64(8)))
	assert.Equal(t, 1, r.ClusterForHash(bighash.FromUint64(15)))
}

// TestRing_Partition 测试每个值恰好落在一个 cluster 内且范围无缝
func TestRing_Partition(t *testing.T) {
	for _, clusters := range []int{1, 2, 3, 5, 7, 16} {
		r, err := New(newSpace(t, 4), clusters, 4, 2)
		require.NoError(t, err)

		ranges := r.Ranges()
		assert.True(t, ranges[0].Min.IsZero())
		assert.True(t, ranges[len(ranges)-1].Max.Equal(r.Space().Max()))
		for i := 1; i < len(ranges); i++ {
			assert.True(t, ranges[i].Min.Equal(ranges[i-1].Max.Add(bighash.One)), "clusters=%d i=%d", clusters, i)
		}

		for v := uint64(0); v < 16; v++ {
			h := bighash.FromUint64(v)
			c := r.ClusterForHash(h)
			require.GreaterOrEqual(t, c, 0)
			require.Less(t, c, clusters)
			assert.True(t, ranges[c].Contains(h), "clusters=%d h=%d c=%d", clusters, v, c)
		}
	}
}

// TestRing_DefaultSpace 测试 160 位空间
func TestRing_DefaultSpace(t *testing.T) {
	r, err := New(bighash.DefaultSpace(), 2, 4, 2)
	require.NoError(t, err)

	assert.Equal(t, 0, r.ClusterForHash(bighash.Zero))
	assert.Equal(t, 1, r.ClusterForHash(r.Space().Max()))
	assert.Equal(t, 1, r.ClusterForHash(r.Divisor()))
	assert.Equal(t, 0, r.ClusterForHash(r.Divisor().Sub(bighash.One)))

	for i := 0; i < 50; i++ {
		h := r.RandomInCluster(1)
		assert.Equal(t, 1, r.ClusterForHash(h))
	}
}

// TestNew_Invalid 测试无效参数
func TestNew_Invalid(t *testing.T) {
	_, err := New(newSpace(t, 4), 0, 4, 2)
	assert.ErrorIs(t, err, ErrInvalidRing)
	_, err = New(newSpace(t, 4), 17, 4, 2)
	assert.ErrorIs(t, err, ErrInvalidRing)
	_, err = New(nil, 2, 4, 2)
	assert.ErrorIs(t, err, ErrInvalidRing)
}
