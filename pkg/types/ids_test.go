package types

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeerID(t *testing.T, seed string) PeerID {
	t.Helper()
	digest := sha256.Sum256([]byte(seed))
	id, err := PeerIDFromDigest(digest[:])
	require.NoError(t, err)
	return id
}

func TestPeerID_FromDigest(t *testing.T) {
	id := testPeerID(t, "alice")

	// sha2-256 multihash 的 base58 形式总是以 Qm 开头
	assert.Equal(t, "Qm", id.String()[:2])
	assert.NoError(t, id.Validate())

	_, err := PeerIDFromDigest([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestParsePeerID(t *testing.T) {
	valid := testPeerID(t, "bob")

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid", valid.String(), nil},
		{"empty", "", ErrEmptyPeerID},
		{"not base58", "0OIl", ErrInvalidPeerID},
		{"wrong length", "3yZe7d", ErrInvalidPeerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePeerID(tt.input)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPeerID_ShortString(t *testing.T) {
	id := PeerID("QmTestLongPeerIdentifier")
	assert.Equal(t, "QmTestLo...ier", id.ShortString())

	short := PeerID("QmShort")
	assert.Equal(t, "QmShort", short.ShortString())
}

func TestErrorClasses(t *testing.T) {
	assert.ErrorIs(t, ErrDuplicateCapability, ErrConfiguration)
	assert.ErrorIs(t, ErrNoCommonCapability, ErrNegotiation)
	assert.ErrorIs(t, ErrEncryptionHandshakeFailed, ErrNegotiation)
	assert.ErrorIs(t, ErrPeerIdentityMismatch, ErrNegotiation)
	assert.ErrorIs(t, ErrUpgradeTimeout, ErrTransport)

	assert.True(t, IsNegotiationError(ErrNoCommonCapability))
	assert.False(t, IsTransportError(ErrNoCommonCapability))
}
