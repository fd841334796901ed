package types

import (
	"strings"

	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerIDPrefix 节点标识的 URN 前缀
const PeerIDPrefix = "urn:jxta:"

// PeerID 节点唯一标识符
//
// 对 peerview 来说是不透明字符串，只做相等比较。本地生成的标识
// 由公钥派生："urn:jxta:" + Base58(SHA256(公钥))。
type PeerID string

// EmptyPeerID 空节点标识
const EmptyPeerID PeerID = ""

// String 返回字符串形式
func (id PeerID) String() string {
	return string(id)
}

// ShortString 返回日志用的短标识
//
// 去掉 URN 前缀后取前 8 个字符。
func (id PeerID) ShortString() string {
	s := strings.TrimPrefix(string(id), PeerIDPrefix)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// IsEmpty 检查是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// Validate 校验标识格式
func (id PeerID) Validate() error {
	if id.IsEmpty() {
		return ErrEmptyPeerID
	}
	if strings.ContainsAny(string(id), " \t\r\n") {
		return ErrInvalidPeerID
	}
	return nil
}

// PeerIDFromPublicKey 由公钥字节派生节点标识
func PeerIDFromPublicKey(pub []byte) PeerID {
	sum := sha256.Sum256(pub)
	return PeerID(PeerIDPrefix + base58.Encode(sum[:]))
}

// ============================================================================
//                              EndpointAddress - 端点地址
// ============================================================================

// EndpointAddress 传输层端点地址，如 "quic://127.0.0.1:9700"
type EndpointAddress string

// String 返回字符串形式
func (a EndpointAddress) String() string {
	return string(a)
}

// IsEmpty 检查是否为空
func (a EndpointAddress) IsEmpty() bool {
	return a == ""
}

// Scheme 返回地址协议部分（"://" 之前），无协议时返回空
func (a EndpointAddress) Scheme() string {
	if scheme, _, ok := strings.Cut(string(a), "://"); ok {
		return scheme
	}
	return ""
}

// Host 返回地址中协议之后的部分
func (a EndpointAddress) Host() string {
	if _, host, ok := strings.Cut(string(a), "://"); ok {
		return host
	}
	return string(a)
}
