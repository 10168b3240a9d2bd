package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix allows the algorithm to
// change without colliding with stored values.
const (
	DomainRequest  = "offchain/request/v1"
	DomainRevision = "offchain/revision/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RequestDigest identifies the content of an inbound command request.
//
// The idempotency cache stores it next to the cached response so that a
// retransmission with the same cid but a different body is detected
// instead of being answered with a stale response.
func RequestDigest(request IRObject) (string, error) {
	canonical, err := MarshalCanonical(request)
	if err != nil {
		return "", fmt.Errorf("RequestDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// RevisionDigest identifies one stored revision of a shared object.
func RevisionDigest(objectID string, payload IRObject) (string, error) {
	canonical, err := MarshalCanonical(IRObject{
		"object_id": IRString(objectID),
		"payload":   payload,
	})
	if err != nil {
		return "", fmt.Errorf("RevisionDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRevision, canonical), nil
}

// MustRequestDigest is like RequestDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRequestDigest(request IRObject) string {
	d, err := RequestDigest(request)
	if err != nil {
		panic(err)
	}
	return d
}
