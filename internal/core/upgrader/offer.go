package upgrader

import (
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-nodehost/pkg/types"
)

const (
	offerFieldKind = 1
	offerFieldID   = 2

	// maxOfferSize 单个提议的最大字节数
	maxOfferSize = 4096
)

// encodeOffer 编码提议（不含长度前缀）
func encodeOffer(kind types.CapabilityKind, ids []string) []byte {
	var b []byte
	b = protowire.AppendTag(b, offerFieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(kind))
	for _, id := range ids {
		b = protowire.AppendTag(b, offerFieldID, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	return b
}

// decodeOffer 解码提议，忽略未知字段
func decodeOffer(b []byte) (types.CapabilityKind, []string, error) {
	var (
		kind types.CapabilityKind
		ids  []string
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, fmt.Errorf("%w: %w", ErrMalformedOffer, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == offerFieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: %w", ErrMalformedOffer, protowire.ParseError(n))
			}
			kind = types.CapabilityKind(v)
			b = b[n:]
		case num == offerFieldID && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: %w", ErrMalformedOffer, protowire.ParseError(n))
			}
			ids = append(ids, s)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: %w", ErrMalformedOffer, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return kind, ids, nil
}

// writeOffer 写出带长度前缀的提议
func writeOffer(w io.Writer, kind types.CapabilityKind, ids []string) error {
	body := encodeOffer(kind, ids)
	buf := make([]byte, 0, varint.UvarintSize(uint64(len(body)))+len(body))
	buf = append(buf, varint.ToUvarint(uint64(len(body)))...)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// readOffer 读取提议并检查类别
func readOffer(r io.Reader, want types.CapabilityKind) ([]string, error) {
	size, err := varint.ReadUvarint(byteReader{r})
	if err != nil {
		return nil, err
	}
	if size > maxOfferSize {
		return nil, fmt.Errorf("%w: offer of %d bytes", ErrMalformedOffer, size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	kind, ids, err := decodeOffer(body)
	if err != nil {
		return nil, err
	}
	if kind != want {
		return nil, fmt.Errorf("%w: expected %s offer, got %s", ErrMalformedOffer, want, kind)
	}
	return ids, nil
}

// byteReader 逐字节读取，不会多读出长度前缀之后的数据
type byteReader struct {
	io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.Reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}
