// Package jws implements the compact JSON Web Signature envelope used on the
// wire: base64url(header) "." base64url(payload) "." base64url(signature),
// restricted to the EdDSA algorithm over Ed25519 keys.
package jws

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm is the only accepted "alg" header value.
var Algorithm = jwt.SigningMethodEdDSA.Alg()

// header is emitted byte-for-byte; the encoding must not depend on a map
// iteration order.
var header = []byte(`{"alg":"EdDSA"}`)

// parser decodes segments as strict unpadded base64url: trailing bits of
// the last character must be zero.
var parser = jwt.NewParser(jwt.WithStrictDecoding())

// ErrorCode identifies why an envelope was rejected.
type ErrorCode string

const (
	// CodeInvalidJWS means the envelope is not three base64url parts.
	CodeInvalidJWS ErrorCode = "invalid_jws"

	// CodeInvalidHeader means the header is not JSON or names another alg.
	CodeInvalidHeader ErrorCode = "invalid_header"

	// CodeInvalidSignature means the signature does not verify.
	CodeInvalidSignature ErrorCode = "invalid_jws_signature"
)

// Error is returned by Decode for every rejected envelope.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the ErrorCode of err, or "" when err is not a jws error.
func CodeOf(err error) ErrorCode {
	var je *Error
	if errors.As(err, &je) {
		return je.Code
	}
	return ""
}

// Encode signs payload with key and returns the compact envelope.
//
// key must be a well-formed Ed25519 private key; like ed25519.Sign, Encode
// panics otherwise.
func Encode(payload []byte, key ed25519.PrivateKey) []byte {
	var tok jwt.Token
	signingString := signingInput(tok.EncodeSegment(header), tok.EncodeSegment(payload))
	sig, err := jwt.SigningMethodEdDSA.Sign(signingString, key)
	if err != nil {
		panic(fmt.Sprintf("jws: sign: %v", err))
	}
	return []byte(signingString + "." + tok.EncodeSegment(sig))
}

// Decode verifies the envelope against key and returns the raw payload.
//
// Checks run in order: structure, header, signature. Segments are decoded
// strictly, so an envelope has exactly one accepted spelling. The payload is
// only returned once the signature verifies; parsing it is left to the
// caller.
func Decode(envelope []byte, key ed25519.PublicKey) ([]byte, error) {
	trimmed := bytes.TrimSpace(envelope)
	if bytes.ContainsAny(trimmed, "\r\n") {
		return nil, &Error{Code: CodeInvalidJWS, Message: "line break inside envelope"}
	}
	parts := strings.Split(string(trimmed), ".")
	if len(parts) != 3 {
		return nil, &Error{Code: CodeInvalidJWS, Message: fmt.Sprintf("expected 3 parts, got %d", len(parts))}
	}

	rawHeader, err := parser.DecodeSegment(parts[0])
	if err != nil {
		return nil, &Error{Code: CodeInvalidJWS, Message: fmt.Sprintf("decode header: %v", err)}
	}
	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, &Error{Code: CodeInvalidJWS, Message: fmt.Sprintf("decode payload: %v", err)}
	}
	sig, err := parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, &Error{Code: CodeInvalidJWS, Message: fmt.Sprintf("decode signature: %v", err)}
	}

	var h struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(rawHeader, &h); err != nil {
		return nil, &Error{Code: CodeInvalidHeader, Message: fmt.Sprintf("parse header: %v", err)}
	}
	if h.Alg != Algorithm {
		return nil, &Error{Code: CodeInvalidHeader, Message: fmt.Sprintf("unsupported alg %q", h.Alg)}
	}

	if err := jwt.SigningMethodEdDSA.Verify(signingInput(parts[0], parts[1]), sig, key); err != nil {
		return nil, &Error{Code: CodeInvalidSignature, Message: fmt.Sprintf("verify: %v", err)}
	}
	return payload, nil
}

func signingInput(encodedHeader, encodedPayload string) string {
	return encodedHeader + "." + encodedPayload
}
