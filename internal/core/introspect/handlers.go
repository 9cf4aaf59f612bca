package introspect

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// NodeInfo 本节点信息
type NodeInfo struct {
	ID        string   `json:"id"`
	Addrs     []string `json:"addrs"`
	Sessions  int      `json:"sessions"`
	KnownPeer int      `json:"known_peers"`
	Uptime    string   `json:"uptime"`
}

// PeerInfo 地址簿中的节点
type PeerInfo struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Addrs     []string  `json:"addrs"`
	Health    int       `json:"health"`
	LastSeen  time.Time `json:"last_seen"`
	Sources   []string  `json:"sources,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

// SessionInfo 打开的会话
type SessionInfo struct {
	ID         string    `json:"id"`
	Peer       string    `json:"peer"`
	RemoteAddr string    `json:"remote_addr"`
	Direction  string    `json:"direction"`
	Transport  string    `json:"transport"`
	Security   string    `json:"security"`
	Muxer      string    `json:"muxer"`
	Opened     time.Time `json:"opened"`
	LastActive time.Time `json:"last_active"`
	Streams    int       `json:"streams"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleNode(c *gin.Context) {
	c.JSON(http.StatusOK, NodeInfo{
		ID:        s.source.ID().String(),
		Addrs:     addrStrings(s.source.Addrs()),
		Sessions:  len(s.source.Sessions()),
		KnownPeer: len(s.source.AddrBook().Peers()),
		Uptime:    s.uptime().Truncate(time.Second).String(),
	})
}

func (s *Server) handlePeers(c *gin.Context) {
	book := s.source.AddrBook()
	peers := book.Peers()
	out := make([]PeerInfo, 0, len(peers))
	for _, id := range peers {
		rec, ok := book.Record(id)
		if !ok {
			continue
		}
		out = append(out, PeerInfo{
			ID:        id.String(),
			State:     s.source.PeerState(id).String(),
			Addrs:     addrStrings(rec.Addrs),
			Health:    rec.Health,
			LastSeen:  rec.LastSeen,
			Sources:   rec.Sources,
			SessionID: rec.SessionID,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSessions(c *gin.Context) {
	sessions := s.source.Sessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		stat := sess.Stat()
		info := SessionInfo{
			ID:         sess.ID(),
			Peer:       sess.RemotePeer().String(),
			Direction:  stat.Direction.String(),
			Transport:  stat.Transport,
			Security:   stat.Security,
			Muxer:      stat.Muxer,
			Opened:     stat.Opened,
			LastActive: stat.LastActive,
			Streams:    stat.NumStreams,
		}
		if addr := sess.RemoteMultiaddr(); addr != nil {
			info.RemoteAddr = addr.String()
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCapabilities(c *gin.Context) {
	reg := s.source.Registry()
	out := make(map[string][]string)
	for kind := types.KindTransport; kind <= types.KindDiscovery; kind++ {
		out[kind.String()] = reg.IDs(kind)
	}
	c.JSON(http.StatusOK, gin.H{
		"sealed":       reg.Sealed(),
		"capabilities": out,
	})
}

func addrStrings(addrs []ma.Multiaddr) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
