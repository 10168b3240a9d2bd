package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offchain/internal/identifier"
	"github.com/roach88/offchain/internal/jws"
	"github.com/roach88/offchain/internal/ledger"
	"github.com/roach88/offchain/internal/offchain"
)

func TestPaymentFlowToReady(t *testing.T) {
	n := newNetwork(t)
	ctx := context.Background()

	init := n.initPayment(bigAmount)
	_, err := n.alice.client.Submit(ctx, init)
	require.NoError(t, err)

	atBob, err := n.bob.client.LatestPayment(ctx, init.ReferenceID())
	require.NoError(t, err)
	require.NotNil(t, atBob)
	assert.True(t, atBob.IsInbound())
	assert.Equal(t, offchain.ActorReceiver, atBob.MyActor())
	action, ok := atBob.FollowUpAction()
	require.True(t, ok)
	assert.Equal(t, offchain.ActionEvaluateKycData, action)

	sig, err := atBob.SignRecipient(testHRP, n.bob.key)
	require.NoError(t, err)
	rSend := atBob.Revise().
		WithStatus(offchain.StatusReadyForSettlement).
		WithKycData(offchain.NewKycData("Bob", "Receiver")).
		WithRecipientSignature(sig).
		Build()
	_, err = n.bob.client.Submit(ctx, rSend)
	require.NoError(t, err)

	atAlice, err := n.alice.client.LatestPayment(ctx, init.ReferenceID())
	require.NoError(t, err)
	state, err := atAlice.State()
	require.NoError(t, err)
	assert.Equal(t, offchain.StateRSend, state.ID)
	assert.Equal(t, offchain.ActorSender, atAlice.MyActor())

	ready := atAlice.Revise().WithStatus(offchain.StatusReadyForSettlement).Build()
	_, err = n.alice.client.Submit(ctx, ready)
	require.NoError(t, err)

	final, err := n.bob.client.LatestPayment(ctx, init.ReferenceID())
	require.NoError(t, err)
	assert.True(t, final.IsTerminal())

	for _, v := range []*testVASP{n.alice, n.bob} {
		pending, err := v.store.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending, v.name)

		history, err := v.store.History(ctx, init.ReferenceID())
		require.NoError(t, err)
		assert.Len(t, history, 3, v.name)
	}
}

func TestInvalidRecipientSignature(t *testing.T) {
	n := newNetwork(t)
	ctx := context.Background()

	init := n.initPayment(bigAmount)
	_, err := n.alice.client.Submit(ctx, init)
	require.NoError(t, err)

	atBob, err := n.bob.client.LatestPayment(ctx, init.ReferenceID())
	require.NoError(t, err)
	sig, err := atBob.SignRecipient(testHRP, n.alice.key)
	require.NoError(t, err)
	rSend := atBob.Revise().
		WithStatus(offchain.StatusReadyForSettlement).
		WithKycData(offchain.NewKycData("Bob", "Receiver")).
		WithRecipientSignature(sig).
		Build()

	resp, err := n.bob.client.Submit(ctx, rSend)
	requireCode(t, err, offchain.CodeInvalidRecipientSignature, string(offchain.PathRecipientSignature))
	require.NotNil(t, resp)
	assert.Equal(t, offchain.StatusFailure, resp.Status)

	latest, err := n.bob.client.LatestPayment(ctx, init.ReferenceID())
	require.NoError(t, err)
	assert.Equal(t, init.CID(), latest.CID(), "rejected revision must not be stored")
}

func TestNoKycNeeded(t *testing.T) {
	n := newNetwork(t)
	ctx := context.Background()

	init := n.initPayment(100)
	_, err := n.alice.client.Submit(ctx, init)
	requireCode(t, err, offchain.CodeNoKycNeeded, "")

	latest, err := n.alice.client.LatestPayment(ctx, init.ReferenceID())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestUnknownCurrency(t *testing.T) {
	n := newNetwork(t)

	init := offchain.InitPayment(offchain.InitParams{
		SenderAddress:   n.alice.account(1),
		ReceiverAddress: n.bob.account(2),
		SenderKycData:   offchain.NewKycData("Alice", "Sender"),
		Amount:          bigAmount,
		Currency:        "XDX",
	})
	_, resp := deliver(t, n.alice, n.bob, init)
	requireCode(t, resp.Err(), offchain.CodeInvalidFieldValue, string(offchain.PathActionCurrency))
}

func TestSubmitValidatesBeforeSending(t *testing.T) {
	n := newNetwork(t)
	ctx := context.Background()

	init := n.initPayment(bigAmount)
	_, err := n.alice.client.Submit(ctx, init)
	require.NoError(t, err)

	// A second initial revision for the same reference id.
	again := offchain.NewPaymentCommand("00000000-0000-4000-8000-0000000000aa", offchain.ActorSender, false, init.Payment())
	p := again.Payment()
	p.Sender.Address = n.alice.account(0x33)
	changed := offchain.NewPaymentCommand(again.CID(), offchain.ActorSender, false, p)
	_, err = n.alice.client.Submit(ctx, changed)
	requireCode(t, err, offchain.CodeInvalidOverwrite, string(offchain.PathSenderAddress))
}

func TestIdempotentRetransmission(t *testing.T) {
	n := newNetwork(t)

	init := n.initPayment(bigAmount)
	first, resp := deliver(t, n.alice, n.bob, init)
	require.Equal(t, http.StatusOK, first.Status)
	require.Equal(t, offchain.StatusSuccess, resp.Status)

	second, _ := deliver(t, n.alice, n.bob, init)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Body, second.Body)

	history, err := n.bob.store.History(context.Background(), init.ReferenceID())
	require.NoError(t, err)
	assert.Len(t, history, 1, "retransmission must not be reprocessed")

	// Same cid, different request.
	other := n.initPayment(bigAmount)
	reused := offchain.NewPaymentCommand(init.CID(), offchain.ActorSender, false, other.Payment())
	reply, resp := deliver(t, n.alice, n.bob, reused)
	assert.Equal(t, http.StatusBadRequest, reply.Status)
	requireCode(t, resp.Err(), offchain.CodeConflict, "cid")
}

func TestFailureResponsesAreCached(t *testing.T) {
	n := newNetwork(t)

	init := n.initPayment(100)
	first, resp := deliver(t, n.alice, n.bob, init)
	requireCode(t, resp.Err(), offchain.CodeNoKycNeeded, "")

	second, _ := deliver(t, n.alice, n.bob, init)
	assert.Equal(t, first.Body, second.Body)
}

func TestProcessEnvelopeErrors(t *testing.T) {
	n := newNetwork(t)
	ctx := context.Background()
	body := envelope(t, n.alice, n.initPayment(bigAmount))
	requestID := "7b2ee8b7-9d5d-4b8c-a6bb-6b1f0a0f1a11"
	stranger := identifier.MustEncode(testHRP, identifier.MustParseAddress("00000000000000000000000000000abc"), identifier.Subaddress{})

	tests := []struct {
		name      string
		requestID string
		sender    string
		body      []byte
		code      offchain.ErrorCode
		field     string
	}{
		{"missing request id", "", n.alice.account(0), body, offchain.CodeMissingHTTPHeader, HeaderRequestID},
		{"malformed request id", "abc", n.alice.account(0), body, offchain.CodeInvalidHTTPHeader, HeaderRequestID},
		{"missing sender", requestID, "", body, offchain.CodeMissingHTTPHeader, HeaderSenderAddress},
		{"malformed sender", requestID, "alice", body, offchain.CodeInvalidHTTPHeader, HeaderSenderAddress},
		{"unknown sender", requestID, stranger, body, offchain.CodeInvalidHTTPHeader, HeaderSenderAddress},
		{"not a jws", requestID, n.alice.account(0), []byte("garbage"), offchain.CodeInvalidJWS, ""},
		{"signed by someone else", requestID, n.bob.account(0), body, offchain.CodeInvalidJWSSignature, ""},
		{"invalid json", requestID, n.alice.account(0), jws.Encode([]byte("{"), n.alice.key), offchain.CodeInvalidJSON, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := n.bob.client.Process(ctx, tt.requestID, tt.sender, tt.body)
			assert.Equal(t, http.StatusBadRequest, reply.Status)
			resp := decodeReply(t, n.bob, reply)
			assert.Empty(t, resp.CID)
			require.NotNil(t, resp.Error)
			assert.Equal(t, offchain.TypeProtocolError, resp.Error.Type)
			requireCode(t, resp.Err(), tt.code, tt.field)
		})
	}
}

func TestProcessUnknownAddress(t *testing.T) {
	n := newNetwork(t)
	stranger := identifier.MustEncode(testHRP, identifier.MustParseAddress("00000000000000000000000000000abc"), identifier.Subaddress{})

	p := n.initPayment(bigAmount).Payment()
	p.Receiver.Address = stranger
	cmd := offchain.NewPaymentCommand("00000000-0000-4000-8000-0000000000bb", offchain.ActorSender, false, p)

	_, resp := deliver(t, n.alice, n.bob, cmd)
	assert.Equal(t, "00000000-0000-4000-8000-0000000000bb", resp.CID)
	requireCode(t, resp.Err(), offchain.CodeUnknownAddress, string(offchain.PathReceiverAddress))
}

func TestProcessCounterpartyMustMatchSigner(t *testing.T) {
	n := newNetwork(t)
	carol := n.addVASP(t, "carol", "cafecafecafecafecafecafecafecafe", 0x03)

	// Alice's payment delivered by carol.
	_, resp := deliver(t, carol, n.bob, n.initPayment(bigAmount))
	requireCode(t, resp.Err(), offchain.CodeUnknownAddress, string(offchain.PathSenderAddress))
}

func TestIsMineFollowsChildAccounts(t *testing.T) {
	n := newNetwork(t)
	child := identifier.MustParseAddress("c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0")
	parent := n.alice.onchain
	n.ledger.AddAccount(ledger.Account{
		Address: child,
		Role:    ledger.Role{Type: ledger.RoleChildVASP, ParentVASPAddress: &parent},
	})

	ctx := context.Background()
	assert.True(t, n.alice.client.IsMine(ctx, n.alice.account(9)))
	assert.True(t, n.alice.client.IsMine(ctx, identifier.MustEncode(testHRP, child, identifier.Subaddress{1})))
	assert.False(t, n.alice.client.IsMine(ctx, n.bob.account(0)))
	assert.False(t, n.alice.client.IsMine(ctx, "not an address"))
}

func TestSendRetriesTransportFailures(t *testing.T) {
	n := newNetwork(t)
	var calls atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		n.bob.server.Config.Handler.ServeHTTP(w, r)
	}))
	defer flaky.Close()
	n.register(n.bob, flaky.URL)

	_, err := n.alice.client.Submit(context.Background(), n.initPayment(bigAmount))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	n := newNetwork(t)
	var calls atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	n.register(n.bob, down.URL)

	init := n.initPayment(bigAmount)
	_, err := n.alice.client.Submit(context.Background(), init)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, int32(3), calls.Load())

	latest, err := n.alice.client.LatestPayment(context.Background(), init.ReferenceID())
	require.NoError(t, err)
	assert.Nil(t, latest, "undelivered command must not be stored")
}

func TestSendRejectsForgedResponse(t *testing.T) {
	n := newNetwork(t)
	forged := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := []byte(`{"_ObjectType":"CommandResponseObject","status":"success"}`)
		w.Write(jws.Encode(payload, n.alice.key))
	}))
	defer forged.Close()
	n.register(n.bob, forged.URL)

	_, err := n.alice.client.Send(context.Background(), n.initPayment(bigAmount))
	requireCode(t, err, offchain.CodeInvalidJWSSignature, "")
}

func TestReferenceIDReservation(t *testing.T) {
	n := newNetwork(t)
	ctx := context.Background()
	ref := "a185027f-0574-4f55-9668-3a38fdb5de98"

	cmd := offchain.NewReferenceIDCommand("00000000-0000-4000-8000-0000000000c1", false, "alice", n.alice.account(1), n.bob.account(2), ref)
	resp, err := n.alice.client.Submit(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, offchain.ReferenceIDResult(n.bob.account(2)), resp.Result)

	again := offchain.NewReferenceIDCommand("00000000-0000-4000-8000-0000000000c2", false, "alice", n.alice.account(1), n.bob.account(2), ref)
	_, err = n.alice.client.Submit(ctx, again)
	requireCode(t, err, offchain.CodeDuplicateReferenceID, "reference_id")
}

func TestFundsPullPreApproval(t *testing.T) {
	n := newNetwork(t)
	ctx := context.Background()

	approval := offchain.FundsPullPreApproval{
		Address:                n.alice.account(1),
		BillerAddress:          n.bob.account(2),
		FundsPullPreApprovalID: "b185027f-0574-4f55-9668-3a38fdb5de98",
		Scope: offchain.FundsPullScope{
			Type:                 offchain.ScopeConsent,
			ExpirationTimestamp:  1800000000,
			MaxTransactionAmount: &offchain.CurrencyAmount{Amount: 10_000, Currency: "XUS"},
		},
		Status: offchain.FundsPullPending,
	}
	request := offchain.NewFundsPullPreApprovalCommand("00000000-0000-4000-8000-0000000000d1", offchain.RoleBiller, false, approval)
	_, err := n.bob.client.Submit(ctx, request)
	require.NoError(t, err)

	rev, ok, err := n.alice.store.Latest(ctx, approval.FundsPullPreApprovalID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(offchain.RolePayer), rev.Role)
	assert.Equal(t, string(offchain.FundsPullPending), rev.State)

	// Only the payer may approve.
	forged := request.WithStatus("00000000-0000-4000-8000-0000000000d2", offchain.FundsPullValid)
	_, err = n.bob.client.Submit(ctx, forged)
	requireCode(t, err, offchain.CodeInvalidCommandProducer, "")

	atAlice, err := n.alice.client.latestFundsPull(ctx, approval.FundsPullPreApprovalID)
	require.NoError(t, err)
	approve := atAlice.WithStatus("00000000-0000-4000-8000-0000000000d3", offchain.FundsPullValid)
	_, err = n.alice.client.Submit(ctx, approve)
	require.NoError(t, err)

	rev, _, err = n.bob.store.Latest(ctx, approval.FundsPullPreApprovalID)
	require.NoError(t, err)
	assert.Equal(t, string(offchain.FundsPullValid), rev.State)
	assert.False(t, rev.Terminal)
}

func TestNewRejectsBadOptions(t *testing.T) {
	n := newNetwork(t)

	_, err := New(Options{HRP: testHRP, Address: n.alice.account(0), Key: n.alice.key})
	assert.Error(t, err, "missing ledger and store")

	_, err = New(Options{HRP: testHRP, Address: n.alice.account(0), Ledger: n.ledger, Store: n.alice.store})
	assert.Error(t, err, "missing key")

	_, err = New(Options{HRP: "dm", Address: n.alice.account(0), Key: n.alice.key, Ledger: n.ledger, Store: n.alice.store})
	assert.Error(t, err, "wrong network")
}
