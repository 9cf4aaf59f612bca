package mdns

import (
	"fmt"
	"net"
	"strings"

	"github.com/hashicorp/mdns"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-nodehost/pkg/types"
)

const (
	// maxTXTLen 单条 TXT 字符串上限
	maxTXTLen = 255

	txtIDPrefix    = "id="
	txtAddrsPrefix = "addrs="
)

// buildTXTRecords 构建 TXT 记录
//
// 始终包含 "id=<peer>"；地址以逗号拼接并切成多个 "addrs=" 分片，
// 每片不超过 255 字节，接收方聚合全部分片。超长的单个地址被丢弃。
func buildTXTRecords(id types.PeerID, addrs []ma.Multiaddr) []string {
	txt := []string{txtIDPrefix + id.String()}

	cur := txtAddrsPrefix
	flush := func() {
		if cur != txtAddrsPrefix {
			txt = append(txt, cur)
		}
		cur = txtAddrsPrefix
	}

	for _, addr := range addrs {
		a := addr.String()
		if len(txtAddrsPrefix)+len(a) > maxTXTLen {
			continue
		}
		next := a
		if cur != txtAddrsPrefix {
			next = "," + a
		}
		if len(cur)+len(next) > maxTXTLen {
			flush()
			next = a
		}
		cur += next
	}
	flush()
	return txt
}

// parseEntry 从服务条目解析候选节点
//
// TXT 中没有可用地址时回退到 A/AAAA 记录加条目端口（TCP）。
func parseEntry(entry *mdns.ServiceEntry) (types.PeerInfo, error) {
	if entry == nil {
		return types.PeerInfo{}, ErrInvalidEntry
	}

	var info types.PeerInfo
	for _, field := range entry.InfoFields {
		switch {
		case strings.HasPrefix(field, txtIDPrefix):
			id, err := types.ParsePeerID(strings.TrimPrefix(field, txtIDPrefix))
			if err != nil {
				return types.PeerInfo{}, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
			}
			info.ID = id
		case strings.HasPrefix(field, txtAddrsPrefix):
			for _, s := range strings.Split(strings.TrimPrefix(field, txtAddrsPrefix), ",") {
				if s == "" {
					continue
				}
				addr, err := ma.NewMultiaddr(s)
				if err != nil {
					log.Debug("跳过无法解析的 TXT 地址", "addr", s, "error", err)
					continue
				}
				info.Addrs = types.AppendUniqueAddrs(info.Addrs, addr)
			}
		}
	}
	if info.ID.IsEmpty() {
		return types.PeerInfo{}, fmt.Errorf("%w: missing id field", ErrInvalidEntry)
	}

	if len(info.Addrs) == 0 && entry.Port > 0 {
		for _, ip := range []net.IP{entry.AddrV4, entry.AddrV6} {
			if ip == nil {
				continue
			}
			addr, err := manet.FromNetAddr(&net.TCPAddr{IP: ip, Port: entry.Port})
			if err == nil {
				info.Addrs = append(info.Addrs, addr)
			}
		}
	}
	if len(info.Addrs) == 0 {
		return types.PeerInfo{}, fmt.Errorf("%w: no addresses", ErrInvalidEntry)
	}
	return info, nil
}
