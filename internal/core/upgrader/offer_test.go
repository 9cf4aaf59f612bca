package upgrader

import (
	"bytes"
	"testing"

	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-nodehost/pkg/types"
)

func TestOffer_ReadWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOffer(&buf, types.KindSecurity, []string{"/noise", "/tls/1.0.0"}))
	// 之后的数据不应被读走
	buf.WriteString("rest")

	ids, err := readOffer(&buf, types.KindSecurity)
	require.NoError(t, err)
	assert.Equal(t, []string{"/noise", "/tls/1.0.0"}, ids)
	assert.Equal(t, "rest", buf.String())
}

func TestOffer_EmptyList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOffer(&buf, types.KindMuxer, nil))
	ids, err := readOffer(&buf, types.KindMuxer)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOffer_KindMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOffer(&buf, types.KindMuxer, []string{"/yamux/1.0.0"}))
	_, err := readOffer(&buf, types.KindSecurity)
	assert.ErrorIs(t, err, ErrMalformedOffer)
	assert.True(t, types.IsNegotiationError(err))
}

func TestOffer_SkipsUnknownFields(t *testing.T) {
	b := encodeOffer(types.KindSecurity, []string{"/noise"})
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	kind, ids, err := decodeOffer(b)
	require.NoError(t, err)
	assert.Equal(t, types.KindSecurity, kind)
	assert.Equal(t, []string{"/noise"}, ids)
}

func TestOffer_Malformed(t *testing.T) {
	_, _, err := decodeOffer([]byte{0x12, 0x05, 'a'})
	assert.ErrorIs(t, err, ErrMalformedOffer)

	var buf bytes.Buffer
	buf.Write(varint.ToUvarint(maxOfferSize + 1))
	_, err = readOffer(&buf, types.KindSecurity)
	assert.ErrorIs(t, err, ErrMalformedOffer)
}
