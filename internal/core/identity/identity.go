// Package identity 管理节点身份
//
// 身份是一把 ed25519 密钥，节点 ID 由公钥派生：
// "urn:jxta:" + Base58(SHA256(公钥))。私钥以 PEM 格式持久化。
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/dep2p/go-peerview/pkg/types"
)

var (
	// ErrInvalidPEM 无效的 PEM 数据
	ErrInvalidPEM = errors.New("identity: invalid PEM data")

	// ErrKeyNotFound 密钥文件不存在
	ErrKeyNotFound = errors.New("identity: key not found")

	// ErrInvalidKeySize 密钥长度错误
	ErrInvalidKeySize = errors.New("identity: invalid key size")
)

// Identity 节点身份
type Identity struct {
	priv ed25519.PrivateKey
	id   types.PeerID
}

// Generate 生成新身份
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return FromPrivateKey(priv)
}

// FromPrivateKey 由私钥构造身份
func FromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{priv: priv, id: types.PeerIDFromPublicKey(pub)}, nil
}

// ID 返回节点 ID
func (i *Identity) ID() types.PeerID {
	return i.id
}

// PublicKey 返回公钥
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.priv.Public().(ed25519.PublicKey)
}

// PrivateKey 返回私钥
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.priv
}

// PeerIDFromKey 由任意公钥派生节点 ID，非 ed25519 公钥返回错误
func PeerIDFromKey(pub any) (types.PeerID, error) {
	k, ok := pub.(ed25519.PublicKey)
	if !ok || len(k) != ed25519.PublicKeySize {
		return types.EmptyPeerID, fmt.Errorf("identity: unsupported public key %T", pub)
	}
	return types.PeerIDFromPublicKey(k), nil
}
