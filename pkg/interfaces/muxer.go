// 本文件定义 Muxer 接口，抽象流多路复用协议。
package interfaces

import (
	"context"
	"net"
	"time"
)

// StreamMuxer 定义流多路复用器接口
type StreamMuxer interface {
	// ID 返回多路复用协议标识
	ID() string

	// NewConn 在安全连接上创建多路复用连接
	NewConn(conn net.Conn, isServer bool) (MuxedConn, error)
}

// MuxedConn 定义多路复用连接接口
type MuxedConn interface {
	// OpenStream 打开新流
	OpenStream(ctx context.Context) (MuxedStream, error)

	// AcceptStream 接受新流
	AcceptStream() (MuxedStream, error)

	// NumStreams 返回当前打开的流数量
	NumStreams() int

	// Close 关闭连接
	Close() error

	// IsClosed 检查连接是否已关闭
	IsClosed() bool

	// CloseChan 返回在底层连接关闭时关闭的通道
	CloseChan() <-chan struct{}
}

// MuxedStream 定义多路复用流接口
type MuxedStream interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)

	// Close 正常关闭
	Close() error

	// Reset 异常关闭
	Reset() error

	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}
