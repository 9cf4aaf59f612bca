package types

import "crypto/sha256"

// TestPeerID 根据种子生成确定性的合法 PeerID，仅用于测试
func TestPeerID(seed string) PeerID {
	sum := sha256.Sum256([]byte(seed))
	id, _ := PeerIDFromDigest(sum[:])
	return id
}
