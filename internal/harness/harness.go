package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/roach88/offchain/internal/client"
	"github.com/roach88/offchain/internal/offchain"
	"github.com/roach88/offchain/internal/server"
	"github.com/roach88/offchain/internal/store"
	"github.com/roach88/offchain/internal/testutil"
)

// DefaultDualAttestationLimit is the ledger limit when a scenario sets none.
const DefaultDualAttestationLimit = 1_000_000

// Fixed subaddresses of the payment's two accounts.
const (
	senderSubaddress   = 0x0a
	receiverSubaddress = 0x0b
)

func init() {
	gin.SetMode(gin.TestMode)
}

// node is one VASP of the scenario network.
type node struct {
	fixture *testutil.VASP
	store   *store.Store
	client  *client.Client
	handler http.Handler
}

// Harness runs one scenario against a sending and a receiving VASP. Both
// serve the real HTTP handler; requests travel through an in-process
// transport instead of sockets.
type Harness struct {
	nodes  map[offchain.Actor]*node
	ids    *testutil.SequentialIDs
	clock  *testutil.DeterministicClock
	refID  string
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh in-memory databases for isolation.
// Identifiers and timestamps are deterministic, so the same scenario
// always yields the same trace.
//
// The error return is reserved for harness failures; step mismatches
// are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	ctx := context.Background()
	result := NewResult()
	result.ReferenceID = h.refID

	for i, step := range scenario.Steps {
		event, err := h.executeStep(ctx, i, step, scenario.Payment)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.AddTrace(event)
		for _, msg := range checkExpect(i, step.Expect, event) {
			result.AddError(msg)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	limit := scenario.DualAttestationLimit
	if limit == 0 {
		limit = DefaultDualAttestationLimit
	}

	alice, bob := testutil.Alice(), testutil.Bob()
	alice.BaseURL = "http://alice.test"
	bob.BaseURL = "http://bob.test"
	l := testutil.NewLedger(limit, alice, bob)

	h := &Harness{
		nodes:  make(map[offchain.Actor]*node, 2),
		ids:    testutil.NewSequentialIDs(0xc1d),
		clock:  testutil.NewDeterministicClock(0),
		refID:  testutil.NewSequentialIDs(0x4ef).Next(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	transport := &loopback{nodes: make(map[string]http.Handler, 2)}
	for actor, fixture := range map[offchain.Actor]*testutil.VASP{
		offchain.ActorSender:   alice,
		offchain.ActorReceiver: bob,
	} {
		st, err := store.Open(":memory:", store.Options{})
		if err != nil {
			h.close()
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		c, err := client.New(client.Options{
			HRP:        testutil.HRP,
			Address:    fixture.Account(0),
			Key:        fixture.Key,
			Ledger:     l,
			Store:      st,
			HTTPClient: &http.Client{Transport: transport},
			Retry:      client.RetryPolicy{MaxAttempts: 1},
			Logger:     h.logger,
		})
		if err != nil {
			st.Close()
			h.close()
			return nil, err
		}
		n := &node{
			fixture: fixture,
			store:   st,
			client:  c,
			handler: server.New(c, h.logger).Handler(),
		}
		h.nodes[actor] = n
		transport.nodes[hostOf(fixture.BaseURL)] = n.handler
	}
	return h, nil
}

func (h *Harness) close() {
	for _, n := range h.nodes {
		n.store.Close()
	}
}

// executeStep builds the step's revision at its producer and delivers it.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, setup PaymentSetup) (TraceEvent, error) {
	by := offchain.Actor(step.By)
	producer := h.nodes[by]

	cmd, err := h.buildRevision(ctx, step, setup, producer)
	if err != nil {
		return TraceEvent{}, err
	}

	event := TraceEvent{Step: index, By: step.By, CID: cmd.CID()}

	var resp *offchain.CommandResponseObject
	if step.Unchecked {
		resp, err = producer.client.Send(ctx, cmd)
	} else {
		resp, err = producer.client.Submit(ctx, cmd)
	}
	if err == nil {
		event.Outcome = OutcomeAccepted
		if s, err := cmd.State(); err == nil {
			event.State = s.ID
		}
		h.logger.Info("step accepted", "step", index, "cid", cmd.CID(), "state", event.State)
		return event, nil
	}

	oe, ok := offchain.AsError(err)
	if !ok {
		return TraceEvent{}, err
	}
	event.Outcome = OutcomeRejected
	if resp == nil {
		event.Outcome = OutcomeRefused
	}
	event.Code = string(oe.Code)
	event.Field = oe.Field
	return event, nil
}

func (h *Harness) buildRevision(ctx context.Context, step Step, setup PaymentSetup, producer *node) (*offchain.PaymentCommand, error) {
	sender := h.nodes[offchain.ActorSender].fixture
	receiver := h.nodes[offchain.ActorReceiver].fixture

	if step.Init {
		return offchain.InitPayment(offchain.InitParams{
			CID:             h.ids.Next(),
			ReferenceID:     h.refID,
			SenderAddress:   sender.Account(senderSubaddress),
			ReceiverAddress: receiver.Account(receiverSubaddress),
			SenderKycData:   step.Kyc.data(),
			Amount:          setup.Amount,
			Currency:        setup.Currency,
			Timestamp:       h.clock.Now(),
			Description:     setup.Description,
		}), nil
	}

	latest, err := producer.client.LatestPayment(ctx, h.refID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, errors.New("producer has no stored payment to revise")
	}

	rev := latest.Revise().WithCID(h.ids.Next())
	switch offchain.Status(step.Status) {
	case "":
	case offchain.StatusAbort:
		rev.WithAbort(offchain.AbortCode(step.AbortCode), step.AbortMessage)
	default:
		rev.WithStatus(offchain.Status(step.Status))
	}
	if step.Kyc != nil {
		rev.WithKycData(step.Kyc.data())
	}
	if step.AdditionalKycData != "" {
		rev.WithAdditionalKycData(step.AdditionalKycData)
	}
	if step.Metadata != nil {
		rev.WithMetadata(step.Metadata...)
	}
	switch {
	case step.Sign:
		sig, err := latest.SignRecipient(testutil.HRP, producer.fixture.Key)
		if err != nil {
			return nil, err
		}
		rev.WithRecipientSignature(sig)
	case step.Signature != "":
		rev.WithRecipientSignature(step.Signature)
	}

	cmd := rev.Build()
	if step.SenderSubaddress != nil {
		p := cmd.Payment()
		p.Sender.Address = sender.Account(*step.SenderSubaddress)
		cmd = offchain.NewPaymentCommand(cmd.CID(), cmd.MyActor(), false, p)
	}
	return cmd, nil
}

func (k *KycStep) data() *offchain.KycData {
	if k == nil {
		return nil
	}
	return offchain.NewKycData(k.GivenName, k.Surname)
}

// checkExpect compares a step's event with its expectation.
func checkExpect(index int, expect *Expect, event TraceEvent) []string {
	if expect == nil || expect.Error == nil {
		if event.Outcome != OutcomeAccepted {
			return []string{fmt.Sprintf("step %d: expected acceptance, got %s %s (field %q)",
				index, event.Outcome, event.Code, event.Field)}
		}
		if expect != nil && expect.State != "" && expect.State != event.State {
			return []string{fmt.Sprintf("step %d: expected state %s, got %s", index, expect.State, event.State)}
		}
		return nil
	}

	want := expect.Error
	var errs []string
	wantOutcome := OutcomeRejected
	if want.Local {
		wantOutcome = OutcomeRefused
	}
	if event.Outcome != wantOutcome {
		errs = append(errs, fmt.Sprintf("step %d: expected %s, got %s", index, wantOutcome, event.Outcome))
	}
	if event.Code != want.Code {
		errs = append(errs, fmt.Sprintf("step %d: expected error code %s, got %q", index, want.Code, event.Code))
	}
	if want.Field != "" && event.Field != want.Field {
		errs = append(errs, fmt.Sprintf("step %d: expected error field %s, got %q", index, want.Field, event.Field))
	}
	return errs
}

// loopback delivers requests to in-process handlers keyed by host.
type loopback struct {
	nodes map[string]http.Handler
}

func (l *loopback) RoundTrip(req *http.Request) (*http.Response, error) {
	handler, ok := l.nodes[req.URL.Host]
	if !ok {
		return nil, fmt.Errorf("no VASP at %s", req.URL.Host)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	return u.Host
}
