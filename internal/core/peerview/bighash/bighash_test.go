package bighash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseHex 测试十六进制解析
func TestParseHex(t *testing.T) {
	h, err := ParseHex("0xFF")
	require.NoError(t, err)
	assert.Equal(t, uint64(255), h.Uint64())
	assert.Equal(t, "ff", h.Hex())

	_, err = ParseHex("")
	assert.ErrorIs(t, err, ErrInvalidHex)
	_, err = ParseHex("xyz")
	assert.ErrorIs(t, err, ErrInvalidHex)
	_, err = ParseHex("-1")
	assert.ErrorIs(t, err, ErrInvalidHex)

	assert.Equal(t, "0", Zero.Hex())
}

// TestHash_FullWidthRoundTrip 测试 160 位值无精度损失
func TestHash_FullWidthRoundTrip(t *testing.T) {
	s := DefaultSpace()
	top := s.Max()
	assert.Equal(t, strings.Repeat("f", 40), top.Hex())

	back, err := ParseHex(top.Hex())
	require.NoError(t, err)
	assert.True(t, back.Equal(top))
}

// TestHash_Arithmetic 测试基本运算
func TestHash_Arithmetic(t *testing.T) {
	a := FromUint64(10)
	b := FromUint64(3)

	assert.Equal(t, uint64(13), a.Add(b).Uint64())
	assert.Equal(t, uint64(7), a.Sub(b).Uint64())
	assert.True(t, b.Sub(a).IsZero())
	assert.Equal(t, uint64(30), a.Mul(b).Uint64())
	assert.Equal(t, uint64(3), a.Div(b).Uint64())
	assert.Equal(t, uint64(1), a.Mod(b).Uint64())
	assert.True(t, a.Div(Zero).IsZero())
	assert.Equal(t, uint64(7), b.Distance(a).Uint64())
	assert.Equal(t, uint64(5), a.Rsh(1).Uint64())
	assert.Equal(t, -1, b.Cmp(a))
	assert.True(t, b.Less(a))
}

// TestSpace_Rand 测试随机值范围
func TestSpace_Rand(t *testing.T) {
	s, err := NewSpace(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), s.Size().Uint64())
	assert.Equal(t, uint64(15), s.Max().Uint64())

	for i := 0; i < 200; i++ {
		v := s.RandInRange(FromUint64(8), FromUint64(15))
		assert.GreaterOrEqual(t, v.Uint64(), uint64(8))
		assert.LessOrEqual(t, v.Uint64(), uint64(15))
		assert.True(t, s.Contains(s.RandFull()))
	}
	assert.True(t, s.Rand(Zero).IsZero())
}

// TestSpace_Gen 测试摘要截断
func TestSpace_Gen(t *testing.T) {
	full := DefaultSpace().Gen([]byte("peer"))
	small, err := NewSpace(8)
	require.NoError(t, err)

	g := small.Gen([]byte("peer"))
	assert.True(t, small.Contains(g))
	assert.True(t, g.Equal(full.Rsh(DefaultBits-8)))
}

// TestNewSpace_Invalid 测试无效位宽
func TestNewSpace_Invalid(t *testing.T) {
	_, err := NewSpace(0)
	assert.ErrorIs(t, err, ErrInvalidBits)
}

// TestHash_Text 测试文本编解码
func TestHash_Text(t *testing.T) {
	var h Hash
	require.NoError(t, h.UnmarshalText([]byte("abc")))
	out, err := h.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
}
