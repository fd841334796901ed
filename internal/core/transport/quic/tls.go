package quic

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-peerview/internal/core/identity"
	"github.com/dep2p/go-peerview/pkg/types"
)

// ALPN peerview QUIC 协议标识
const ALPN = "jxta-peerview/1"

// certValidity 自签名证书有效期
const certValidity = 180 * 24 * time.Hour

// newTLSConfigs 由节点身份生成服务端与客户端 TLS 配置
//
// 证书直接用身份私钥自签名，对端 ID 从证书公钥派生，无需 CA。
func newTLSConfigs(id *identity.Identity) (server, client *tls.Config, err error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, err
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"peerview"},
			CommonName:   id.ID().String(),
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, id.PublicKey(), id.PrivateKey())
	if err != nil {
		return nil, nil, fmt.Errorf("创建证书失败: %w", err)
	}

	server = &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: id.PrivateKey()}},
		NextProtos:   []string{ALPN},
		// 自签名证书不走 CA 校验，由 verifyPeerCertificate 校验公钥
		InsecureSkipVerify:    true,
		ClientAuth:            tls.RequireAnyClientCert,
		VerifyPeerCertificate: verifyPeerCertificate,
		MinVersion:            tls.VersionTLS13,
	}
	client = server.Clone()
	client.ClientAuth = tls.NoClientCert
	return server, client, nil
}

// verifyPeerCertificate 校验对端证书为 ed25519 且在有效期内
func verifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("对端未提供证书")
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("解析证书失败: %w", err)
	}
	if _, err := identity.PeerIDFromKey(cert.PublicKey); err != nil {
		return err
	}
	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf("证书不在有效期内: %v - %v", cert.NotBefore, cert.NotAfter)
	}
	return nil
}

// remotePeerID 从连接的对端证书派生节点 ID
func remotePeerID(conn quic.Connection) types.PeerID {
	certs := conn.ConnectionState().TLS.PeerCertificates
	if len(certs) == 0 {
		return types.EmptyPeerID
	}
	id, err := identity.PeerIDFromKey(certs[0].PublicKey)
	if err != nil {
		return types.EmptyPeerID
	}
	return id
}
