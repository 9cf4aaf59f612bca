// 本文件定义 Transport 接口，抽象底层传输协议。
package interfaces

import (
	"context"
	"net"

	ma "github.com/multiformats/go-multiaddr"
)

// Transport 定义传输层接口
//
// Transport 抽象不同的传输协议（TCP、WebSocket、QUIC），
// 只负责建立原始字节流连接，加密和多路复用由 Upgrader 完成。
type Transport interface {
	// ID 返回传输标识，如 "tcp"
	ID() string

	// Dial 拨号连接到指定地址
	Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error)

	// CanDial 检查是否支持拨号到指定地址
	CanDial(addr ma.Multiaddr) bool

	// Listen 在指定地址监听
	Listen(laddr ma.Multiaddr) (Listener, error)

	// Protocols 返回支持的多地址协议编号
	Protocols() []int

	// Close 关闭传输及其全部监听器
	Close() error
}

// Listener 定义监听器接口
type Listener interface {
	// Accept 接受新的原始连接
	Accept() (net.Conn, error)

	// Close 关闭监听器
	Close() error

	// Multiaddr 返回实际监听的多地址
	Multiaddr() ma.Multiaddr
}
