package offchain

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/offchain/internal/identifier"
)

const (
	testHRP       = identifier.TestnetHRP
	testReference = "4185027f-0574-6f55-2668-3a38fdb5de98"
	testTimestamp = 1700000000
)

var (
	senderOnChain   = identifier.MustParseAddress("f72589b71ff4f8d139674a3f7369c69b")
	receiverOnChain = identifier.MustParseAddress("1b8fb8e1f4d35a01a5a2d5b2ba0d6c6b")

	senderID   = identifier.MustEncode(testHRP, senderOnChain, identifier.Subaddress{0x01})
	receiverID = identifier.MustEncode(testHRP, receiverOnChain, identifier.Subaddress{0x02})

	receiverKey = ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x42}, ed25519.SeedSize))
)

func senderKyc() *KycData   { return NewKycData("Alice", "Sender") }
func receiverKyc() *KycData { return NewKycData("Bob", "Receiver") }

// initCommand is scenario 1's first revision, owned by the sender.
func initCommand(t *testing.T) *PaymentCommand {
	t.Helper()
	return InitPayment(InitParams{
		CID:             "00000000-0000-4000-8000-000000000001",
		ReferenceID:     testReference,
		SenderAddress:   senderID,
		ReceiverAddress: receiverID,
		SenderKycData:   senderKyc(),
		Amount:          10_000,
		Currency:        "XUS",
		Timestamp:       testTimestamp,
	})
}

// receive re-wraps a command as the counterparty sees it.
func receive(c *PaymentCommand) *PaymentCommand {
	return NewPaymentCommand(c.CID(), c.MyActor().Opponent(), true, c.Payment())
}

// paymentIn returns a payment that classifies into the given state. All
// write-once fields are populated identically across states except the
// additional KYC data, which some states require to be absent.
func paymentIn(t *testing.T, state string) Payment {
	t.Helper()
	p := initCommand(t).Payment()
	p.Receiver.KycData = receiverKyc()
	p.RecipientSignature = "00"

	statuses := map[string][2]Status{
		StateSInit:     {StatusNeedsKycData, StatusNone},
		StateRSend:     {StatusNeedsKycData, StatusReadyForSettlement},
		StateRAbort:    {StatusNeedsKycData, StatusAbort},
		StateRSoft:     {StatusNeedsKycData, StatusSoftMatch},
		StateSSoftSend: {StatusNeedsKycData, StatusSoftMatch},
		StateReady:     {StatusReadyForSettlement, StatusReadyForSettlement},
		StateSAbort:    {StatusAbort, StatusReadyForSettlement},
		StateSSoft:     {StatusSoftMatch, StatusReadyForSettlement},
		StateRSoftSend: {StatusSoftMatch, StatusReadyForSettlement},
	}
	s, ok := statuses[state]
	require.True(t, ok, "unknown state %s", state)
	p.Sender.Status = StatusObject{Status: s[0]}
	p.Receiver.Status = StatusObject{Status: s[1]}

	switch state {
	case StateSSoftSend:
		p.Sender.AdditionalKycData = "sender extra"
	case StateRSoftSend:
		p.Receiver.AdditionalKycData = "receiver extra"
	}
	return p
}

func stateIDs() []string {
	return []string{
		StateSInit, StateRSend, StateRAbort, StateRSoft, StateSSoftSend,
		StateReady, StateSAbort, StateSSoft, StateRSoftSend,
	}
}

func requireCode(t *testing.T, err error, code ErrorCode, field string) {
	t.Helper()
	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok, "not an offchain error: %v", err)
	require.Equal(t, code, e.Code, "error: %v", err)
	if field != "" {
		require.Equal(t, field, e.Field, "error: %v", err)
	}
}
