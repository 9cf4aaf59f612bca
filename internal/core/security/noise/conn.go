package noise

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/flynn/noise"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

const (
	// maxFrameSize Noise 消息上限
	maxFrameSize = 65535
	// maxPlaintext 单帧可承载的明文（去掉 16 字节认证标签）
	maxPlaintext = maxFrameSize - 16
)

// secureConn Noise 加密连接
type secureConn struct {
	net.Conn

	send *noise.CipherState
	recv *noise.CipherState

	localPeer    types.PeerID
	remotePeer   types.PeerID
	remotePubKey ed25519.PublicKey

	readMu  sync.Mutex
	readBuf []byte

	writeMu sync.Mutex
}

var _ pkgif.SecureConn = (*secureConn)(nil)

// Read 解密下一帧，剩余明文留在缓冲区
func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.readBuf) > 0 {
		n := copy(p, c.readBuf)
		c.readBuf = c.readBuf[n:]
		return n, nil
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(c.Conn, lenBuf[:]); err != nil {
		return 0, err
	}
	msgLen := binary.BigEndian.Uint16(lenBuf[:])
	if msgLen == 0 {
		return 0, io.EOF
	}
	enc := make([]byte, msgLen)
	if _, err := io.ReadFull(c.Conn, enc); err != nil {
		return 0, err
	}
	plain, err := c.recv.Decrypt(enc[:0], nil, enc)
	if err != nil {
		return 0, fmt.Errorf("decrypt: %w", err)
	}

	n := copy(p, plain)
	if n < len(plain) {
		c.readBuf = plain[n:]
	}
	return n, nil
}

// Write 按最大帧切分后加密写入
func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(p) {
		end := written + maxPlaintext
		if end > len(p) {
			end = len(p)
		}
		frame := make([]byte, 2, 2+end-written+16)
		frame, err := c.send.Encrypt(frame, nil, p[written:end])
		if err != nil {
			return written, fmt.Errorf("encrypt: %w", err)
		}
		binary.BigEndian.PutUint16(frame, uint16(len(frame)-2))
		if _, err := c.Conn.Write(frame); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

func (c *secureConn) LocalPeer() types.PeerID  { return c.localPeer }
func (c *secureConn) RemotePeer() types.PeerID { return c.remotePeer }
func (c *secureConn) RemotePublicKey() []byte  { return c.remotePubKey }
