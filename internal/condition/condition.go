// Package condition translates between the engine's canonical 32-byte
// base64url condition/fulfillment representation and the
// crypto-condition wire forms the ledger speaks: an ni: URI for
// conditions and a DER-framed base64url blob for fulfillments.
package condition

import (
	"encoding/base64"
	"strings"

	"github.com/crossrail/fivebells/internal/domain"
)

const (
	uriPrefix = "ni:///sha-256;"
	uriSuffix = "?fpt=preimage-sha-256&cost=32"

	// encodedLen is 32 bytes of raw condition in unpadded base64url.
	encodedLen = 43
)

// fulfillmentPreamble is the fixed DER framing a preimage fulfillment
// carries on the wire: PREIMAGE-SHA-256 tag, length 0x22, preimage tag
// 0x80, length 0x20.
var fulfillmentPreamble = []byte{0xA0, 0x22, 0x80, 0x20}

var b64 = base64.RawURLEncoding

func validCanonical(condition string) bool {
	if len(condition) != encodedLen {
		return false
	}
	raw, err := b64.DecodeString(condition)
	if err != nil {
		return false
	}
	return len(raw) == 32
}

// ToWire wraps a canonical condition as its ni: URI. An empty
// condition stays empty (unconditional transfer).
func ToWire(condition string) (string, error) {
	if condition == "" {
		return "", nil
	}
	if !validCanonical(condition) {
		return "", domain.NewError(domain.KindInvalidFields, "invalid condition %q: expected 32 bytes as unpadded base64url", condition)
	}
	return uriPrefix + condition + uriSuffix, nil
}

// FromWire extracts the canonical condition from an ni: URI. An empty
// URI stays empty.
func FromWire(uri string) (string, error) {
	if uri == "" {
		return "", nil
	}
	if !strings.HasPrefix(uri, uriPrefix) || !strings.HasSuffix(uri, uriSuffix) {
		return "", domain.NewError(domain.KindInvalidFields, "invalid condition uri %q", uri)
	}
	cond := uri[len(uriPrefix) : len(uri)-len(uriSuffix)]
	if !validCanonical(cond) {
		return "", domain.NewError(domain.KindInvalidFields, "invalid condition uri %q", uri)
	}
	return cond, nil
}

// FulfillmentToWire frames a canonical 32-byte preimage for the wire.
func FulfillmentToWire(preimage string) (string, error) {
	raw, err := b64.DecodeString(preimage)
	if err != nil || len(raw) != 32 {
		return "", domain.NewError(domain.KindInvalidFields, "invalid fulfillment %q: expected 32 bytes as unpadded base64url", preimage)
	}
	framed := make([]byte, 0, len(fulfillmentPreamble)+len(raw))
	framed = append(framed, fulfillmentPreamble...)
	framed = append(framed, raw...)
	return b64.EncodeToString(framed), nil
}

// FulfillmentFromWire strips the DER framing off a wire fulfillment
// and returns the canonical preimage.
func FulfillmentFromWire(wire string) (string, error) {
	raw, err := b64.DecodeString(wire)
	if err != nil {
		return "", domain.NewError(domain.KindInvalidFields, "invalid wire fulfillment %q", wire)
	}
	if len(raw) != len(fulfillmentPreamble)+32 {
		return "", domain.NewError(domain.KindInvalidFields, "invalid wire fulfillment: got %d bytes, want %d", len(raw), len(fulfillmentPreamble)+32)
	}
	for i, b := range fulfillmentPreamble {
		if raw[i] != b {
			return "", domain.NewError(domain.KindInvalidFields, "invalid wire fulfillment: bad preamble")
		}
	}
	return b64.EncodeToString(raw[len(fulfillmentPreamble):]), nil
}
