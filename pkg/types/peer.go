package types

import (
	"fmt"
	"strings"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// ============================================================================
//                              PeerInfo - 候选节点
// ============================================================================

// PeerInfo 节点地址信息
//
// 发现机制产出的候选记录：一组传输地址 + 可选的身份提示。
// ID 为空表示身份未知，需要在握手后确认。
type PeerInfo struct {
	ID    PeerID
	Addrs []ma.Multiaddr
}

// String 返回可读表示
func (pi PeerInfo) String() string {
	addrs := make([]string, 0, len(pi.Addrs))
	for _, a := range pi.Addrs {
		addrs = append(addrs, a.String())
	}
	return fmt.Sprintf("{%s: [%s]}", pi.ID.ShortString(), strings.Join(addrs, " "))
}

// HasIdentity 是否携带身份提示
func (pi PeerInfo) HasIdentity() bool {
	return !pi.ID.IsEmpty()
}

// P2PAddrs 返回附带 /p2p/<id> 后缀的地址
func (pi PeerInfo) P2PAddrs() ([]ma.Multiaddr, error) {
	if pi.ID.IsEmpty() {
		return pi.Addrs, nil
	}
	suffix, err := ma.NewMultiaddr("/p2p/" + pi.ID.String())
	if err != nil {
		return nil, err
	}
	out := make([]ma.Multiaddr, 0, len(pi.Addrs))
	for _, a := range pi.Addrs {
		out = append(out, a.Encapsulate(suffix))
	}
	return out, nil
}

// SplitP2PAddr 拆分 /.../p2p/<id> 形式的地址
//
// 返回去掉 /p2p 组件的传输地址和身份；没有 /p2p 组件时身份为空。
func SplitP2PAddr(addr ma.Multiaddr) (ma.Multiaddr, PeerID, error) {
	value, err := addr.ValueForProtocol(ma.P_P2P)
	if err != nil {
		// 不含 /p2p 组件
		return addr, EmptyPeerID, nil
	}
	id, err := ParsePeerID(value)
	if err != nil {
		return nil, EmptyPeerID, fmt.Errorf("parse %s: %w", addr, err)
	}
	suffix, err := ma.NewMultiaddr("/p2p/" + value)
	if err != nil {
		return nil, EmptyPeerID, err
	}
	transport := addr.Decapsulate(suffix)
	if transport == nil || len(transport.Bytes()) == 0 {
		return nil, EmptyPeerID, fmt.Errorf("address %s has no transport part", addr)
	}
	return transport, id, nil
}

// PeerInfoFromString 从 "/ip4/.../tcp/.../p2p/<id>" 字符串解析 PeerInfo
func PeerInfoFromString(s string) (PeerInfo, error) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return PeerInfo{}, fmt.Errorf("parse multiaddr %q: %w", s, err)
	}
	transport, id, err := SplitP2PAddr(addr)
	if err != nil {
		return PeerInfo{}, err
	}
	return PeerInfo{ID: id, Addrs: []ma.Multiaddr{transport}}, nil
}

// MergePeerInfos 按身份合并候选记录，保持首次出现的顺序
//
// 无身份的记录原样保留。
func MergePeerInfos(infos []PeerInfo) []PeerInfo {
	out := make([]PeerInfo, 0, len(infos))
	index := make(map[PeerID]int, len(infos))
	for _, pi := range infos {
		if pi.ID.IsEmpty() {
			out = append(out, pi)
			continue
		}
		i, ok := index[pi.ID]
		if !ok {
			index[pi.ID] = len(out)
			out = append(out, PeerInfo{ID: pi.ID, Addrs: append([]ma.Multiaddr(nil), pi.Addrs...)})
			continue
		}
		out[i].Addrs = AppendUniqueAddrs(out[i].Addrs, pi.Addrs...)
	}
	return out
}

// AppendUniqueAddrs 追加不重复的地址
func AppendUniqueAddrs(dst []ma.Multiaddr, addrs ...ma.Multiaddr) []ma.Multiaddr {
	for _, a := range addrs {
		if a == nil {
			continue
		}
		dup := false
		for _, d := range dst {
			if d.Equal(a) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, a)
		}
	}
	return dst
}

// ============================================================================
//                              PeerRecord - 地址簿记录
// ============================================================================

// PeerRecord 地址簿中的节点记录（值拷贝）
type PeerRecord struct {
	ID        PeerID         `json:"id"`
	Addrs     []ma.Multiaddr `json:"-"`
	LastSeen  time.Time      `json:"last_seen"`
	Health    int            `json:"health"`
	Sources   []string       `json:"sources,omitempty"`
	Connected bool           `json:"connected"`

	// SessionID 非拥有的会话反向引用，断开后清空
	SessionID string `json:"session_id,omitempty"`
}

// Info 返回记录对应的 PeerInfo
func (r PeerRecord) Info() PeerInfo {
	return PeerInfo{ID: r.ID, Addrs: append([]ma.Multiaddr(nil), r.Addrs...)}
}
