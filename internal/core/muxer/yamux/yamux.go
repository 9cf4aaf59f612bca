// Package yamux 提供基于 libp2p go-yamux 的多路复用实现
package yamux

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"time"

	"github.com/libp2p/go-yamux/v4"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// ID 协商标识
const ID = "/yamux/1.0.0"

// Transport yamux 多路复用器
type Transport struct {
	config *yamux.Config
}

var _ pkgif.StreamMuxer = (*Transport)(nil)

// New 创建多路复用器
func New() *Transport {
	cfg := yamux.DefaultConfig()
	// 16MiB 窗口：100ms 延迟下可达 160MB/s
	cfg.MaxStreamWindowSize = uint32(16 * 1024 * 1024)
	cfg.LogOutput = io.Discard
	// 安全传输层已有缓冲
	cfg.ReadBufSize = 0
	cfg.MaxIncomingStreams = math.MaxUint32
	return &Transport{config: cfg}
}

// ID 返回协商标识
func (t *Transport) ID() string { return ID }

// NewConn 在安全连接上建立多路复用会话
func (t *Transport) NewConn(conn net.Conn, isServer bool) (pkgif.MuxedConn, error) {
	var (
		sess *yamux.Session
		err  error
	)
	if isServer {
		sess, err = yamux.Server(conn, t.config, nil)
	} else {
		sess, err = yamux.Client(conn, t.config, nil)
	}
	if err != nil {
		return nil, err
	}
	return &muxedConn{session: sess}, nil
}

// muxedConn 包装 yamux.Session
type muxedConn struct {
	session *yamux.Session
}

func (c *muxedConn) OpenStream(ctx context.Context) (pkgif.MuxedStream, error) {
	s, err := c.session.OpenStream(ctx)
	if err != nil {
		return nil, parseError(err)
	}
	return &muxedStream{stream: s}, nil
}

func (c *muxedConn) AcceptStream() (pkgif.MuxedStream, error) {
	s, err := c.session.AcceptStream()
	if err != nil {
		return nil, parseError(err)
	}
	return &muxedStream{stream: s}, nil
}

func (c *muxedConn) NumStreams() int            { return c.session.NumStreams() }
func (c *muxedConn) Close() error               { return c.session.Close() }
func (c *muxedConn) IsClosed() bool             { return c.session.IsClosed() }
func (c *muxedConn) CloseChan() <-chan struct{} { return c.session.CloseChan() }

// muxedStream 包装 yamux.Stream
type muxedStream struct {
	stream *yamux.Stream
}

func (s *muxedStream) Read(p []byte) (int, error) {
	n, err := s.stream.Read(p)
	return n, parseError(err)
}

func (s *muxedStream) Write(p []byte) (int, error) {
	n, err := s.stream.Write(p)
	return n, parseError(err)
}

func (s *muxedStream) Close() error                       { return s.stream.Close() }
func (s *muxedStream) Reset() error                       { return s.stream.Reset() }
func (s *muxedStream) SetDeadline(t time.Time) error      { return s.stream.SetDeadline(t) }
func (s *muxedStream) SetReadDeadline(t time.Time) error  { return s.stream.SetReadDeadline(t) }
func (s *muxedStream) SetWriteDeadline(t time.Time) error { return s.stream.SetWriteDeadline(t) }

// parseError 转换 yamux 错误
func parseError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, yamux.ErrStreamReset):
		return types.ErrStreamReset
	case errors.Is(err, yamux.ErrSessionShutdown):
		return types.ErrSessionClosed
	default:
		return err
	}
}
