// Package hashicorp 提供基于 hashicorp/yamux 的多路复用实现
//
// 与 libp2p yamux 的线格式不同，使用独立的协商标识。
package hashicorp

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/hashicorp/yamux"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// ID 协商标识
const ID = "/yamux/hashicorp/1.0.0"

// Transport hashicorp yamux 多路复用器
type Transport struct {
	config *yamux.Config
}

var _ pkgif.StreamMuxer = (*Transport)(nil)

// DefaultConfig 返回默认配置
func DefaultConfig() *yamux.Config {
	return &yamux.Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    256 * 1024,
		StreamOpenTimeout:      75 * time.Second,
		StreamCloseTimeout:     5 * time.Minute,
		LogOutput:              io.Discard,
	}
}

// New 创建多路复用器
func New() *Transport {
	return &Transport{config: DefaultConfig()}
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
		sess, err = yamux.Server(conn, t.config)
	} else {
		sess, err = yamux.Client(conn, t.config)
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

// OpenStream 打开新流，ctx 取消时放弃等待
func (c *muxedConn) OpenStream(ctx context.Context) (pkgif.MuxedStream, error) {
	type result struct {
		s   *yamux.Stream
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := c.session.OpenStream()
		ch <- result{s, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, parseError(r.err)
		}
		return &muxedStream{stream: r.s}, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.s != nil {
				_ = r.s.Close()
			}
		}()
		return nil, ctx.Err()
	}
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

func (s *muxedStream) Close() error { return s.stream.Close() }

// Reset hashicorp yamux 没有 RST 语义，退化为关闭
func (s *muxedStream) Reset() error { return s.stream.Close() }

func (s *muxedStream) SetDeadline(t time.Time) error      { return s.stream.SetDeadline(t) }
func (s *muxedStream) SetReadDeadline(t time.Time) error  { return s.stream.SetReadDeadline(t) }
func (s *muxedStream) SetWriteDeadline(t time.Time) error { return s.stream.SetWriteDeadline(t) }

func parseError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, yamux.ErrConnectionReset):
		return types.ErrStreamReset
	case errors.Is(err, yamux.ErrSessionShutdown):
		return types.ErrSessionClosed
	default:
		return err
	}
}
