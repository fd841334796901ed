// Package bighash 提供 peerview 地址空间上的定宽无符号大整数运算
//
// 地址空间为 [0, 2^Bits)，默认 Bits = 160（SHA-1 摘要宽度）。
// Hash 是不可变值，所有运算返回新值。
package bighash

import (
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"math/big"
	"strings"
)

// DefaultBits 默认地址空间位宽（SHA-1）
const DefaultBits = sha1.Size * 8

// ============================================================================
//                              Hash
// ============================================================================

// Hash 地址空间中的一个值
//
// 零值表示 0。
type Hash struct {
	n *big.Int
}

// Zero 零值
var Zero = Hash{}

// One 常量 1
var One = FromUint64(1)

// FromUint64 由 uint64 构造
func FromUint64(v uint64) Hash {
	return Hash{n: new(big.Int).SetUint64(v)}
}

// FromBig 由 big.Int 构造（复制），负数按 0 处理
func FromBig(v *big.Int) Hash {
	if v == nil || v.Sign() <= 0 {
		return Zero
	}
	return Hash{n: new(big.Int).Set(v)}
}

// FromBytes 由大端字节构造
func FromBytes(b []byte) Hash {
	return Hash{n: new(big.Int).SetBytes(b)}
}

// ParseHex 解析十六进制字符串
//
// 接受大小写及可选的 "0x" 前缀。
func ParseHex(s string) (Hash, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return Zero, ErrInvalidHex
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok || n.Sign() < 0 {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return Hash{n: n}, nil
}

// MustParseHex 解析十六进制字符串，失败时 panic（仅用于常量与测试）
func MustParseHex(s string) Hash {
	h, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return h
}

func (h Hash) big() *big.Int {
	if h.n == nil {
		return new(big.Int)
	}
	return h.n
}

// Big 返回 big.Int 副本
func (h Hash) Big() *big.Int {
	return new(big.Int).Set(h.big())
}

// Hex 返回小写十六进制，无前缀，零为 "0"
func (h Hash) Hex() string {
	return h.big().Text(16)
}

// String 实现 fmt.Stringer
func (h Hash) String() string {
	return h.Hex()
}

// Bytes 返回大端字节（零为空切片）
func (h Hash) Bytes() []byte {
	return h.big().Bytes()
}

// Uint64 返回低 64 位
func (h Hash) Uint64() uint64 {
	return h.big().Uint64()
}

// IsZero 是否为 0
func (h Hash) IsZero() bool {
	return h.n == nil || h.n.Sign() == 0
}

// Cmp 比较：h<o 返回 -1，相等 0，h>o 返回 1
func (h Hash) Cmp(o Hash) int {
	return h.big().Cmp(o.big())
}

// Equal 是否相等
func (h Hash) Equal(o Hash) bool {
	return h.Cmp(o) == 0
}

// Less 是否 h < o
func (h Hash) Less(o Hash) bool {
	return h.Cmp(o) < 0
}

// Add h + o
func (h Hash) Add(o Hash) Hash {
	return Hash{n: new(big.Int).Add(h.big(), o.big())}
}

// Sub h - o，结果小于 0 时截断为 0
//
// 需要带符号距离时使用 Distance。
func (h Hash) Sub(o Hash) Hash {
	n := new(big.Int).Sub(h.big(), o.big())
	if n.Sign() < 0 {
		return Zero
	}
	return Hash{n: n}
}

// Mul h * o
func (h Hash) Mul(o Hash) Hash {
	return Hash{n: new(big.Int).Mul(h.big(), o.big())}
}

// Div h / o（整除），o 为 0 时返回 0
func (h Hash) Div(o Hash) Hash {
	if o.IsZero() {
		return Zero
	}
	return Hash{n: new(big.Int).Quo(h.big(), o.big())}
}

// Mod h mod o，o 为 0 时返回 0
func (h Hash) Mod(o Hash) Hash {
	if o.IsZero() {
		return Zero
	}
	return Hash{n: new(big.Int).Mod(h.big(), o.big())}
}

// Rsh h >> n
func (h Hash) Rsh(n uint) Hash {
	return Hash{n: new(big.Int).Rsh(h.big(), n)}
}

// Lsh h << n
func (h Hash) Lsh(n uint) Hash {
	return Hash{n: new(big.Int).Lsh(h.big(), n)}
}

// Distance 返回 |h - o|
func (h Hash) Distance(o Hash) Hash {
	if h.Cmp(o) >= 0 {
		return h.Sub(o)
	}
	return o.Sub(h)
}

// MarshalText 实现 encoding.TextMarshaler（十六进制）
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (h *Hash) UnmarshalText(b []byte) error {
	v, err := ParseHex(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// ============================================================================
//                              Space
// ============================================================================

// Space 地址空间 [0, 2^Bits)
type Space struct {
	bits uint
	size Hash
	max  Hash
}

// NewSpace 创建指定位宽的地址空间
func NewSpace(bits uint) (*Space, error) {
	if bits == 0 || bits > 4096 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBits, bits)
	}
	size := One.Lsh(bits)
	return &Space{bits: bits, size: size, max: size.Sub(One)}, nil
}

// DefaultSpace 返回 160 位地址空间
func DefaultSpace() *Space {
	s, _ := NewSpace(DefaultBits)
	return s
}

// Bits 位宽
func (s *Space) Bits() uint { return s.bits }

// Size 空间大小 2^Bits
func (s *Space) Size() Hash { return s.size }

// Max 最大值 2^Bits - 1
func (s *Space) Max() Hash { return s.max }

// Contains h 是否落在空间内
func (s *Space) Contains(h Hash) bool {
	return h.Cmp(s.max) <= 0
}

// Wrap h mod Size
func (s *Space) Wrap(h Hash) Hash {
	return h.Mod(s.size)
}

// Rand 返回 [0, n) 内的均匀随机值，n 为 0 时返回 0
func (s *Space) Rand(n Hash) Hash {
	if n.IsZero() {
		return Zero
	}
	v, err := rand.Int(rand.Reader, n.big())
	if err != nil {
		// crypto/rand 失败视为不可恢复
		panic(fmt.Sprintf("bighash: crypto/rand: %v", err))
	}
	return Hash{n: v}
}

// RandFull 返回整个空间内的随机值
func (s *Space) RandFull() Hash {
	return s.Rand(s.size)
}

// RandInRange 返回 [lo, hi] 内的均匀随机值
func (s *Space) RandInRange(lo, hi Hash) Hash {
	if hi.Cmp(lo) < 0 {
		lo, hi = hi, lo
	}
	return lo.Add(s.Rand(hi.Sub(lo).Add(One)))
}

// Gen 对任意数据做 SHA-1 并截断到空间位宽
func (s *Space) Gen(data []byte) Hash {
	sum := sha1.Sum(data)
	h := FromBytes(sum[:])
	if s.bits < DefaultBits {
		return h.Rsh(DefaultBits - s.bits)
	}
	return h
}
