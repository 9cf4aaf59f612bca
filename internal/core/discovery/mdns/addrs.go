package mdns

import (
	"net"
	"strconv"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// interfaceIPs 返回本机非回环单播地址，测试可替换
var interfaceIPs = func() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.IsLinkLocalUnicast() {
			continue
		}
		out = append(out, ipnet.IP)
	}
	return out, nil
}

// expandAddrs 把 0.0.0.0 / :: 监听地址展开为具体的接口地址
func expandAddrs(addrs []ma.Multiaddr) []ma.Multiaddr {
	var ifaces []net.IP
	var loaded bool

	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, addr := range addrs {
		ip, err := manet.ToIP(addr)
		if err != nil {
			continue
		}
		if !ip.IsUnspecified() {
			out = append(out, addr)
			continue
		}
		if !loaded {
			ifaces, err = interfaceIPs()
			if err != nil {
				log.Debug("读取网卡地址失败", "error", err)
			}
			loaded = true
		}
		first, rest := ma.SplitFirst(addr)
		if first == nil {
			continue
		}
		for _, candidate := range ifaces {
			if (candidate.To4() != nil) != (ip.To4() != nil) {
				continue
			}
			prefix, err := manet.FromIP(candidate)
			if err != nil {
				continue
			}
			if rest != nil {
				prefix = prefix.Encapsulate(rest)
			}
			out = append(out, prefix)
		}
	}
	return out
}

// ipsOf 提取地址中的 IP
func ipsOf(addrs []ma.Multiaddr) []net.IP {
	seen := make(map[string]struct{})
	var out []net.IP
	for _, addr := range addrs {
		ip, err := manet.ToIP(addr)
		if err != nil {
			continue
		}
		if _, ok := seen[ip.String()]; ok {
			continue
		}
		seen[ip.String()] = struct{}{}
		out = append(out, ip)
	}
	return out
}

// inferPort 取第一个带 TCP 或 UDP 端口的地址的端口
func inferPort(addrs []ma.Multiaddr) int {
	for _, addr := range addrs {
		for _, code := range []int{ma.P_TCP, ma.P_UDP} {
			v, err := addr.ValueForProtocol(code)
			if err != nil {
				continue
			}
			if port, err := strconv.Atoi(v); err == nil && port > 0 {
				return port
			}
		}
	}
	return 0
}
