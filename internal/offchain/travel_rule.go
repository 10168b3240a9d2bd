package offchain

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/roach88/offchain/internal/bcs"
	"github.com/roach88/offchain/internal/identifier"
)

// AttestationTag is appended to every dual-attestation signing message.
const AttestationTag = "@@$$DIEM_ATTEST$$@@"

// Ledger metadata enum tags.
const (
	metadataTravelRule   = 2
	travelRuleMetadataV0 = 0
)

// TravelRuleMetadata returns the ledger metadata binding the settlement
// transaction to this payment's reference id.
func (c *PaymentCommand) TravelRuleMetadata() []byte {
	ref := c.payment.ReferenceID
	return new(bcs.Encoder).
		Variant(metadataTravelRule).
		Variant(travelRuleMetadataV0).
		OptionalString(&ref).
		Bytes()
}

// TravelRuleMessage returns the bytes the receiver signs:
// metadata || sender on-chain address || amount (u64 LE) || AttestationTag.
func (c *PaymentCommand) TravelRuleMessage(hrp string) ([]byte, error) {
	sender, err := identifier.Decode(hrp, c.payment.Sender.Address)
	if err != nil {
		return nil, FieldError(TypeCommandError, CodeInvalidFieldValue, string(PathSenderAddress), "%v", err)
	}
	return new(bcs.Encoder).
		Fixed(c.TravelRuleMetadata()).
		Fixed(sender.Address[:]).
		U64(c.payment.Action.Amount).
		Fixed([]byte(AttestationTag)).
		Bytes(), nil
}

// SignRecipient returns the hex travel-rule signature of the payment under
// the receiver's compliance key.
func (c *PaymentCommand) SignRecipient(hrp string, key ed25519.PrivateKey) (string, error) {
	msg, err := c.TravelRuleMessage(hrp)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(key, msg)), nil
}

// VerifyRecipientSignature checks the payment's recipient signature against
// the receiver's compliance key.
func (c *PaymentCommand) VerifyRecipientSignature(hrp string, key ed25519.PublicKey) error {
	invalid := func(format string, args ...any) error {
		return FieldError(TypeCommandError, CodeInvalidRecipientSignature, string(PathRecipientSignature), format, args...)
	}

	sig, err := hex.DecodeString(c.payment.RecipientSignature)
	if err != nil {
		return invalid("decode signature: %v", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return invalid("signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}
	if len(key) != ed25519.PublicKeySize {
		return invalid("invalid compliance key length %d", len(key))
	}
	msg, err := c.TravelRuleMessage(hrp)
	if err != nil {
		return err
	}
	if !ed25519.Verify(key, msg, sig) {
		return invalid("signature verification failed")
	}
	return nil
}
