// Package noise 实现 Noise XX 安全传输
//
// 握手流程：
//
//	-> e
//	<- e, ee, s, es, payload
//	-> s, se, payload
//
// payload 携带 Ed25519 身份公钥以及对 "noise-libp2p-static-key:" + Curve25519 静态公钥的签名，
// 从而把 Noise 静态密钥绑定到节点身份。
package noise

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"filippo.io/edwards25519"
	"github.com/flynn/noise"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-nodehost/internal/core/identity"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// payloadSigPrefix 签名前缀
const payloadSigPrefix = "noise-libp2p-static-key:"

// payload 字段编号
const (
	fieldIdentityKey protowire.Number = 1
	fieldIdentitySig protowire.Number = 2
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// handshakeResult 握手结果
type handshakeResult struct {
	send, recv   *noise.CipherState
	remotePeer   types.PeerID
	remotePubKey ed25519.PublicKey
}

// performHandshake 执行 Noise XX 握手并验证对端身份
func performHandshake(conn net.Conn, priv ed25519.PrivateKey, initiator bool) (*handshakeResult, error) {
	pub := priv.Public().(ed25519.PublicKey)
	static := noise.DHKey{
		Private: ed25519ToCurve25519Private(priv),
		Public:  ed25519ToCurve25519Public(pub),
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, fmt.Errorf("create handshake state: %w", err)
	}

	sig := ed25519.Sign(priv, append([]byte(payloadSigPrefix), static.Public...))
	localPayload := encodePayload(pub, sig)

	var send, recv *noise.CipherState
	var remotePayload []byte
	if initiator {
		send, recv, remotePayload, err = clientHandshake(conn, hs, localPayload)
	} else {
		send, recv, remotePayload, err = serverHandshake(conn, hs, localPayload)
	}
	if err != nil {
		return nil, err
	}

	remoteKey, remotePeer, err := verifyPayload(remotePayload, hs.PeerStatic())
	if err != nil {
		return nil, err
	}
	return &handshakeResult{send: send, recv: recv, remotePeer: remotePeer, remotePubKey: remoteKey}, nil
}

// clientHandshake 发起方握手，返回 (发送, 接收, 对端 payload)
func clientHandshake(conn net.Conn, hs *noise.HandshakeState, localPayload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 1: %w", err)
	}
	if err := writeFrame(conn, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 1: %w", err)
	}

	msg2, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 2: %w", err)
	}
	remotePayload, _, _, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 2: %w", err)
	}

	msg3, cs1, cs2, err := hs.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 3: %w", err)
	}
	if err := writeFrame(conn, msg3); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 3: %w", err)
	}
	return cs1, cs2, remotePayload, nil
}

// serverHandshake 响应方握手，密钥方向与发起方相反
func serverHandshake(conn net.Conn, hs *noise.HandshakeState, localPayload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg1, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 1: %w", err)
	}
	if _, _, _, err = hs.ReadMessage(nil, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("read message 1: %w", err)
	}

	msg2, _, _, err := hs.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 2: %w", err)
	}
	if err := writeFrame(conn, msg2); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 2: %w", err)
	}

	msg3, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 3: %w", err)
	}
	remotePayload, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 3: %w", err)
	}
	return cs2, cs1, remotePayload, nil
}

// ============================================================================
//                              payload 编解码
// ============================================================================

func encodePayload(pub ed25519.PublicKey, sig []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldIdentityKey, protowire.BytesType)
	b = protowire.AppendBytes(b, pub)
	b = protowire.AppendTag(b, fieldIdentitySig, protowire.BytesType)
	b = protowire.AppendBytes(b, sig)
	return b
}

func decodePayload(b []byte) (key, sig []byte, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldIdentityKey:
			key = v
		case fieldIdentitySig:
			sig = v
		}
	}
	return key, sig, nil
}

// verifyPayload 验证静态密钥签名并派生对端 PeerID
func verifyPayload(payload, remoteStatic []byte) (ed25519.PublicKey, types.PeerID, error) {
	key, sig, err := decodePayload(payload)
	if err != nil {
		return nil, types.EmptyPeerID, fmt.Errorf("decode payload: %w", err)
	}
	if err := identity.ValidatePublicKey(key); err != nil {
		return nil, types.EmptyPeerID, err
	}
	if len(remoteStatic) != 32 {
		return nil, types.EmptyPeerID, errors.New("invalid remote static key")
	}
	if err := identity.Verify(key, append([]byte(payloadSigPrefix), remoteStatic...), sig); err != nil {
		return nil, types.EmptyPeerID, fmt.Errorf("static key not bound to identity: %w", err)
	}
	id, err := identity.PeerIDFromPublicKey(key)
	if err != nil {
		return nil, types.EmptyPeerID, err
	}
	return ed25519.PublicKey(key), id, nil
}

// ============================================================================
//                              密钥转换
// ============================================================================

// ed25519ToCurve25519Private 按 RFC 7748 对种子哈希后 clamping
func ed25519ToCurve25519Private(priv ed25519.PrivateKey) []byte {
	h := sha512.Sum512(priv.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32]
}

// ed25519ToCurve25519Public Edwards -> Montgomery: u = (1 + y) / (1 - y)
func ed25519ToCurve25519Public(pub ed25519.PublicKey) []byte {
	point, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return make([]byte, 32)
	}
	return point.BytesMontgomery()
}

// ============================================================================
//                              帧
// ============================================================================

// writeFrame 写入 2 字节长度前缀的帧
func writeFrame(w io.Writer, data []byte) error {
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

// readFrame 读取 2 字节长度前缀的帧
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
