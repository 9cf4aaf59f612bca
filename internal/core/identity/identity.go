// Package identity 提供节点身份的实现
//
// 身份 = Ed25519 密钥对 + 派生的 PeerID。
// PeerID = Base58(multihash(sha2-256, SHA256(公钥)))。
package identity

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	sha256 "github.com/minio/sha256-simd"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// Identity 节点身份
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	id   types.PeerID
}

var _ pkgif.Identity = (*Identity)(nil)

// Generate 生成新的随机身份
func Generate() (*Identity, error) {
	return GenerateFromReader(rand.Reader)
}

// GenerateFromReader 使用指定随机源生成身份
//
// 随机源失败属于致命错误，返回包装 types.ErrIdentity 的错误。
func GenerateFromReader(r io.Reader) (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("%w: generate ed25519 key: %w", types.ErrIdentity, err)
	}
	return FromPrivateKey(priv)
}

// FromPrivateKey 从 Ed25519 私钥创建身份
func FromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: %w", types.ErrIdentity, ErrInvalidKeySize)
	}
	pub := priv.Public().(ed25519.PublicKey)
	id, err := PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrIdentity, err)
	}
	return &Identity{priv: priv, pub: pub, id: id}, nil
}

// PeerID 返回节点 ID
func (i *Identity) PeerID() types.PeerID {
	return i.id
}

// PublicKey 返回公钥原始字节
func (i *Identity) PublicKey() []byte {
	return append([]byte(nil), i.pub...)
}

// PrivateKey 返回签名器
func (i *Identity) PrivateKey() crypto.Signer {
	return i.priv
}

// Sign 签名
func (i *Identity) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(i.priv, data), nil
}

// ============================================================================
//                              公钥工具
// ============================================================================

// PeerIDFromPublicKey 从 Ed25519 公钥派生 PeerID
func PeerIDFromPublicKey(pub []byte) (types.PeerID, error) {
	if err := ValidatePublicKey(pub); err != nil {
		return types.EmptyPeerID, err
	}
	digest := sha256.Sum256(pub)
	return types.PeerIDFromDigest(digest[:])
}

// ValidatePublicKey 检查公钥长度并确认其为曲线上的合法点
func ValidatePublicKey(pub []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrInvalidKeySize
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return nil
}

// Verify 使用公钥验证签名
func Verify(pub, data, sig []byte) error {
	if err := ValidatePublicKey(pub); err != nil {
		return err
	}
	if !ed25519.Verify(pub, data, sig) {
		return ErrInvalidSignature
	}
	return nil
}
