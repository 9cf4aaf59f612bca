// Package types 定义 nodehost 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他 nodehost 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
package types

import (
	"crypto/sha256"
	"errors"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
//
// 编码：Base58(multihash(sha2-256, SHA256(公钥)))，即常见的 "Qm..." 形式，
// 可直接放入 /p2p/<id> 多地址组件。
type PeerID string

// multihash 前缀：sha2-256 (0x12)，摘要长度 32 (0x20)
const (
	mhSHA256    = 0x12
	mhSHA256Len = 0x20
)

// EmptyPeerID 空节点 ID
const EmptyPeerID PeerID = ""

// String 返回 PeerID 字符串
func (id PeerID) String() string {
	return string(id)
}

// ShortString 返回用于日志的短格式
//
// 格式：前 8 个字符...后 3 个字符
func (id PeerID) ShortString() string {
	s := string(id)
	if len(s) <= 12 {
		return s
	}
	return s[:8] + "..." + s[len(s)-3:]
}

// IsEmpty 检查 PeerID 是否为空
func (id PeerID) IsEmpty() bool {
	return id == ""
}

// Validate 检查 PeerID 的编码是否合法
func (id PeerID) Validate() error {
	if id.IsEmpty() {
		return ErrEmptyPeerID
	}
	b, err := base58.Decode(string(id))
	if err != nil {
		return ErrInvalidPeerID
	}
	if len(b) != 2+sha256.Size || b[0] != mhSHA256 || b[1] != mhSHA256Len {
		return ErrInvalidPeerID
	}
	return nil
}

// ParsePeerID 从字符串解析 PeerID
func ParsePeerID(s string) (PeerID, error) {
	id := PeerID(s)
	if err := id.Validate(); err != nil {
		return EmptyPeerID, err
	}
	return id, nil
}

// PeerIDFromDigest 从公钥摘要构造 PeerID
func PeerIDFromDigest(digest []byte) (PeerID, error) {
	if len(digest) != sha256.Size {
		return EmptyPeerID, errors.New("peer id digest must be 32 bytes")
	}
	buf := make([]byte, 0, 2+len(digest))
	buf = append(buf, mhSHA256, mhSHA256Len)
	buf = append(buf, digest...)
	return PeerID(base58.Encode(buf)), nil
}

// PeerIDSlice 实现 sort.Interface
type PeerIDSlice []PeerID

func (s PeerIDSlice) Len() int           { return len(s) }
func (s PeerIDSlice) Less(i, j int) bool { return s[i] < s[j] }
func (s PeerIDSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
