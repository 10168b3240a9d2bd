package jws

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, seed byte) ed25519.PrivateKey {
	t.Helper()
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := testKey(t, 1)
	payload := []byte(`{"cid":"3185027f-0574-6f55-2668-3a38fdb5de98","command_type":"PaymentCommand"}`)

	envelope := Encode(payload, key)
	assert.Equal(t, 2, bytes.Count(envelope, []byte{'.'}))

	got, err := Decode(envelope, key.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestEncodeHeader(t *testing.T) {
	envelope := Encode([]byte(`{}`), testKey(t, 1))
	head := strings.SplitN(string(envelope), ".", 2)[0]
	raw, err := base64.RawURLEncoding.DecodeString(head)
	require.NoError(t, err)
	assert.Equal(t, `{"alg":"EdDSA"}`, string(raw))
}

func TestEncodeDeterministic(t *testing.T) {
	key := testKey(t, 7)
	assert.Equal(t, Encode([]byte("x"), key), Encode([]byte("x"), key))
}

func TestDecodeRejectsFlippedSignature(t *testing.T) {
	key := testKey(t, 1)
	pub := key.Public().(ed25519.PublicKey)
	envelope := Encode([]byte(`{"status":"success"}`), key)

	parts := strings.Split(string(envelope), ".")
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	for i := range sig {
		flipped := append([]byte(nil), sig...)
		flipped[i] ^= 0x01
		tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(flipped)

		_, err := Decode([]byte(tampered), pub)
		require.Error(t, err, "byte %d", i)
		assert.Equal(t, CodeInvalidSignature, CodeOf(err))
	}
}

func TestDecodeRejectsWrongKey(t *testing.T) {
	envelope := Encode([]byte(`{}`), testKey(t, 1))
	_, err := Decode(envelope, testKey(t, 2).Public().(ed25519.PublicKey))
	assert.Equal(t, CodeInvalidSignature, CodeOf(err))
}

func TestDecodeRejectsTamperedPayload(t *testing.T) {
	key := testKey(t, 1)
	parts := strings.Split(string(Encode([]byte(`{"a":1}`), key)), ".")
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"a":2}`))

	_, err := Decode([]byte(strings.Join(parts, ".")), key.Public().(ed25519.PublicKey))
	assert.Equal(t, CodeInvalidSignature, CodeOf(err))
}

func TestDecodeErrors(t *testing.T) {
	key := testKey(t, 1)
	pub := key.Public().(ed25519.PublicKey)
	b64 := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name     string
		envelope string
		code     ErrorCode
	}{
		{"empty", "", CodeInvalidJWS},
		{"two parts", "a.b", CodeInvalidJWS},
		{"four parts", "a.b.c.d", CodeInvalidJWS},
		{"bad base64 header", "!!." + b64("{}") + "." + b64("sig"), CodeInvalidJWS},
		{"header not json", b64("nope") + "." + b64("{}") + "." + b64("sig"), CodeInvalidHeader},
		{"wrong alg", b64(`{"alg":"HS256"}`) + "." + b64("{}") + "." + b64("sig"), CodeInvalidHeader},
		{"missing alg", b64(`{}`) + "." + b64("{}") + "." + b64("sig"), CodeInvalidHeader},
		{"bad signature", b64(`{"alg":"EdDSA"}`) + "." + b64("{}") + "." + b64("sig"), CodeInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.envelope), pub)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(assert.AnError))
}

func TestParseKeys(t *testing.T) {
	key := testKey(t, 3)
	pub := key.Public().(ed25519.PublicKey)

	fromSeed, err := ParsePrivateKey(SeedHex(key))
	require.NoError(t, err)
	assert.Equal(t, key, fromSeed)

	fromFull, err := ParsePrivateKey("0x" + PublicKeyHex(ed25519.PublicKey(key)))
	require.NoError(t, err)
	assert.Equal(t, key, fromFull)

	parsedPub, err := ParsePublicKey(PublicKeyHex(pub))
	require.NoError(t, err)
	assert.Equal(t, pub, parsedPub)

	_, err = ParsePrivateKey("abcd")
	assert.Error(t, err)
	_, err = ParsePrivateKey("zz")
	assert.Error(t, err)
	_, err = ParsePublicKey(SeedHex(key) + "00")
	assert.Error(t, err)
}

func TestGenerateKey(t *testing.T) {
	pub, priv, err := GenerateKey()
	require.NoError(t, err)
	envelope := Encode([]byte("hello"), priv)
	got, err := Decode(envelope, pub)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestDecodeRejectsNonCanonicalSignatureEncoding(t *testing.T) {
	key := testKey(t, 1)
	pub := key.Public().(ed25519.PublicKey)
	envelope := string(Encode([]byte(`{"status":"success"}`), key))

	// A 64-byte signature leaves 4 unused bits in its last base64url
	// character; every other spelling of that character must be refused.
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	last := envelope[len(envelope)-1]
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		if c == last {
			continue
		}
		tampered := envelope[:len(envelope)-1] + string(c)
		_, err := Decode([]byte(tampered), pub)
		require.Error(t, err, "last character %q", c)
	}
}

func TestDecodeRejectsEmbeddedLineBreak(t *testing.T) {
	key := testKey(t, 1)
	envelope := string(Encode([]byte(`{}`), key))
	dot := strings.LastIndex(envelope, ".")
	tampered := envelope[:dot+4] + "\n" + envelope[dot+4:]

	_, err := Decode([]byte(tampered), key.Public().(ed25519.PublicKey))
	assert.Equal(t, CodeInvalidJWS, CodeOf(err))
}

func TestDecodeRejectsPaddedSegments(t *testing.T) {
	key := testKey(t, 1)
	parts := strings.Split(string(Encode([]byte(`{"a":1}`), key)), ".")
	parts[2] += "=="

	_, err := Decode([]byte(strings.Join(parts, ".")), key.Public().(ed25519.PublicKey))
	assert.Equal(t, CodeInvalidJWS, CodeOf(err))
}
