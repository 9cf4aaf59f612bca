// 本文件定义 Identity 接口。
package interfaces

import (
	"crypto"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// Identity 本节点身份
//
// 创建后不可变。私钥材料不离开本进程（除写入本地密钥文件）。
type Identity interface {
	// PeerID 返回由公钥派生的节点 ID
	PeerID() types.PeerID

	// PublicKey 返回 Ed25519 公钥原始字节
	PublicKey() []byte

	// PrivateKey 返回可用于 crypto/tls 的签名器
	PrivateKey() crypto.Signer

	// Sign 使用私钥签名
	Sign(data []byte) ([]byte, error)
}
