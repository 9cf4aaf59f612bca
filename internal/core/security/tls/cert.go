// Package tls 实现基于 TLS 1.3 的安全传输
//
// 每个节点用身份 Ed25519 私钥签发自签名证书，对端从证书公钥派生 PeerID。
// 不依赖 CA：TLS 1.3 的 CertificateVerify 证明对端持有证书私钥。
package tls

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/dep2p/go-nodehost/internal/core/identity"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// certValidity 证书有效期
const certValidity = 365 * 24 * time.Hour

var (
	errNoCertificate   = errors.New("peer presented no certificate")
	errTooManyCerts    = errors.New("peer presented more than one certificate")
	errUnsupportedKey  = errors.New("peer certificate key is not ed25519")
	errCertNotYetValid = errors.New("peer certificate not valid at current time")
)

// generateCertificate 用身份私钥签发自签名证书
func generateCertificate(priv ed25519.PrivateKey, id types.PeerID) (tls.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: id.String()},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, priv.Public(), priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("创建证书失败: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}, nil
}

// verifyCertificate 校验对端证书并返回其身份
func verifyCertificate(rawCerts [][]byte) (ed25519.PublicKey, types.PeerID, error) {
	switch {
	case len(rawCerts) == 0:
		return nil, types.EmptyPeerID, errNoCertificate
	case len(rawCerts) > 1:
		return nil, types.EmptyPeerID, errTooManyCerts
	}

	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return nil, types.EmptyPeerID, err
	}
	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return nil, types.EmptyPeerID, errCertNotYetValid
	}
	if err := cert.CheckSignatureFrom(cert); err != nil {
		return nil, types.EmptyPeerID, fmt.Errorf("self-signature: %w", err)
	}
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, types.EmptyPeerID, errUnsupportedKey
	}
	id, err := identity.PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, types.EmptyPeerID, err
	}
	return pub, id, nil
}
