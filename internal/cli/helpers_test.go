package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/offchain/internal/ir"
	"github.com/roach88/offchain/internal/offchain"
	"github.com/roach88/offchain/internal/testutil"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writePayment writes p as canonical JSON into dir.
func writePayment(t *testing.T, dir, name string, p offchain.Payment) string {
	t.Helper()
	data, err := ir.MarshalCanonical(p.ToIR())
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// paymentFlow holds the first three revisions of a payment.
type paymentFlow struct {
	init, rSend, ready *offchain.PaymentCommand
}

func newPaymentFlow() paymentFlow {
	alice, bob := testutil.Alice(), testutil.Bob()
	init := offchain.InitPayment(offchain.InitParams{
		ReferenceID:     "00000001-0000-4000-8000-000000000001",
		SenderAddress:   alice.Account(0x0a),
		ReceiverAddress: bob.Account(0x0b),
		SenderKycData:   offchain.NewKycData("Alice", "Sender"),
		Amount:          10_000,
		Currency:        "XUS",
		Timestamp:       testutil.DefaultEpoch,
	})
	atBob := offchain.NewPaymentCommand(init.CID(), offchain.ActorReceiver, true, init.Payment())
	rSend := atBob.Revise().
		WithStatus(offchain.StatusReadyForSettlement).
		WithKycData(offchain.NewKycData("Bob", "Receiver")).
		WithRecipientSignature(strings.Repeat("ab", 64)).
		Build()
	atAlice := offchain.NewPaymentCommand(rSend.CID(), offchain.ActorSender, true, rSend.Payment())
	ready := atAlice.Revise().WithStatus(offchain.StatusReadyForSettlement).Build()
	return paymentFlow{init: init, rSend: rSend, ready: ready}
}
