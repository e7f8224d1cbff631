package condition

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossrail/fivebells/internal/domain"
)

func randomCanonical(t *testing.T) string {
	t.Helper()
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func TestConditionRoundTrip(t *testing.T) {
	canonical := randomCanonical(t)

	uri, err := ToWire(canonical)
	require.NoError(t, err)
	assert.Equal(t, "ni:///sha-256;"+canonical+"?fpt=preimage-sha-256&cost=32", uri)

	back, err := FromWire(uri)
	require.NoError(t, err)
	assert.Equal(t, canonical, back)
}

func TestEmptyConditionPassesThrough(t *testing.T) {
	uri, err := ToWire("")
	require.NoError(t, err)
	assert.Empty(t, uri)

	canonical, err := FromWire("")
	require.NoError(t, err)
	assert.Empty(t, canonical)
}

func TestToWireRejectsBadConditions(t *testing.T) {
	for _, cond := range []string{
		"too-short",
		strings.Repeat("A", 44),
		strings.Repeat("!", 43),
		strings.Repeat("A", 43) + "=",
	} {
		_, err := ToWire(cond)
		require.Error(t, err, cond)
		assert.True(t, domain.IsKind(err, domain.KindInvalidFields), cond)
	}
}

func TestFromWireRejectsBadURIs(t *testing.T) {
	canonical := randomCanonical(t)
	for _, uri := range []string{
		canonical,
		"ni:///sha-512;" + canonical + "?fpt=preimage-sha-256&cost=32",
		"ni:///sha-256;" + canonical,
		"ni:///sha-256;short?fpt=preimage-sha-256&cost=32",
	} {
		_, err := FromWire(uri)
		require.Error(t, err, uri)
		assert.True(t, domain.IsKind(err, domain.KindInvalidFields), uri)
	}
}

func TestFulfillmentFraming(t *testing.T) {
	zeroPreimage := strings.Repeat("A", 43)

	wire, err := FulfillmentToWire(zeroPreimage)
	require.NoError(t, err)
	assert.Equal(t, "oCKAI"+strings.Repeat("A", 43), wire)

	back, err := FulfillmentFromWire(wire)
	require.NoError(t, err)
	assert.Equal(t, zeroPreimage, back)
}

func TestFulfillmentRoundTrip(t *testing.T) {
	preimage := randomCanonical(t)

	wire, err := FulfillmentToWire(preimage)
	require.NoError(t, err)

	back, err := FulfillmentFromWire(wire)
	require.NoError(t, err)
	assert.Equal(t, preimage, back)
}

func TestFulfillmentFromWireRejectsBadFraming(t *testing.T) {
	preimage := randomCanonical(t)
	raw, err := base64.RawURLEncoding.DecodeString(preimage)
	require.NoError(t, err)

	badPreamble := append([]byte{0xA1, 0x22, 0x80, 0x20}, raw...)
	for _, wire := range []string{
		preimage,
		base64.RawURLEncoding.EncodeToString(badPreamble),
		"not base64url!!",
	} {
		_, err := FulfillmentFromWire(wire)
		require.Error(t, err, wire)
		assert.True(t, domain.IsKind(err, domain.KindInvalidFields), wire)
	}
}
