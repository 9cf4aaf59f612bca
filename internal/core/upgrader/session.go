package upgrader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// session 升级成功后得到的会话
type session struct {
	id string

	mux pkgif.MuxedConn
	sec pkgif.SecureConn

	remoteAddr ma.Multiaddr
	dir        types.Direction
	transport  string
	security   string
	muxer      string

	opened     time.Time
	lastActive atomic.Int64
}

var _ pkgif.Session = (*session)(nil)

func newSession(mux pkgif.MuxedConn, sec pkgif.SecureConn, dir types.Direction,
	transportID, securityID, muxerID string, remote ma.Multiaddr) *session {
	now := time.Now()
	s := &session{
		id:         uuid.NewString(),
		mux:        mux,
		sec:        sec,
		remoteAddr: remote,
		dir:        dir,
		transport:  transportID,
		security:   securityID,
		muxer:      muxerID,
		opened:     now,
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

func (s *session) ID() string                    { return s.id }
func (s *session) LocalPeer() types.PeerID       { return s.sec.LocalPeer() }
func (s *session) RemotePeer() types.PeerID      { return s.sec.RemotePeer() }
func (s *session) RemoteMultiaddr() ma.Multiaddr { return s.remoteAddr }

// Stat 返回会话统计
func (s *session) Stat() pkgif.SessionStat {
	return pkgif.SessionStat{
		Direction:  s.dir,
		Transport:  s.transport,
		Security:   s.security,
		Muxer:      s.muxer,
		Opened:     s.opened,
		LastActive: time.Unix(0, s.lastActive.Load()),
		NumStreams: s.mux.NumStreams(),
	}
}

func (s *session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// OpenStream 打开子流
func (s *session) OpenStream(ctx context.Context) (pkgif.MuxedStream, error) {
	st, err := s.mux.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	s.touch()
	return &stream{MuxedStream: st, sess: s}, nil
}

// AcceptStream 接受子流
func (s *session) AcceptStream() (pkgif.MuxedStream, error) {
	st, err := s.mux.AcceptStream()
	if err != nil {
		return nil, err
	}
	s.touch()
	return &stream{MuxedStream: st, sess: s}, nil
}

// Close 关闭会话，多路复用器负责关闭底层连接
func (s *session) Close() error {
	return s.mux.Close()
}

func (s *session) IsClosed() bool             { return s.mux.IsClosed() }
func (s *session) CloseChan() <-chan struct{} { return s.mux.CloseChan() }

// stream 读写时刷新会话活跃时间
type stream struct {
	pkgif.MuxedStream
	sess *session
}

func (st *stream) Read(p []byte) (int, error) {
	n, err := st.MuxedStream.Read(p)
	if n > 0 {
		st.sess.touch()
	}
	return n, err
}

func (st *stream) Write(p []byte) (int, error) {
	n, err := st.MuxedStream.Write(p)
	if n > 0 {
		st.sess.touch()
	}
	return n, err
}
