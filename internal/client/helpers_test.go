package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offchain/internal/identifier"
	"github.com/roach88/offchain/internal/jws"
	"github.com/roach88/offchain/internal/ledger"
	"github.com/roach88/offchain/internal/offchain"
	"github.com/roach88/offchain/internal/store"
)

const (
	testHRP   = identifier.TestnetHRP
	testLimit = 1_000_000
	bigAmount = 10_000_000
)

type testVASP struct {
	name    string
	onchain identifier.Address
	key     ed25519.PrivateKey
	client  *Client
	store   *store.Store
	server  *httptest.Server
}

// account returns an account identifier of the VASP with a subaddress.
func (v *testVASP) account(sub byte) string {
	return identifier.MustEncode(testHRP, v.onchain, identifier.Subaddress{sub})
}

func (v *testVASP) pub() ed25519.PublicKey {
	return v.key.Public().(ed25519.PublicKey)
}

type network struct {
	ledger *ledger.Static
	alice  *testVASP
	bob    *testVASP
}

func newNetwork(t *testing.T) *network {
	t.Helper()
	n := &network{ledger: ledger.NewStatic(testLimit)}
	n.ledger.AddCurrency(ledger.Currency{Code: "XUS", ToBaseCurrencyExchangeRate: decimal.NewFromInt(1)})
	n.alice = n.addVASP(t, "alice", "f72589b71ff4f8d139674a3f7369c69b", 0x01)
	n.bob = n.addVASP(t, "bob", "1b8fb8e1f4d35a01a5a2d5b2ba0d6c6b", 0x02)
	return n
}

func (n *network) addVASP(t *testing.T, name, address string, seed byte) *testVASP {
	t.Helper()
	v := &testVASP{
		name:    name,
		onchain: identifier.MustParseAddress(address),
		key:     ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize)),
	}

	s, err := store.Open(filepath.Join(t.TempDir(), name+".db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	v.store = s

	v.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reply := v.client.Process(r.Context(), r.Header.Get(HeaderRequestID), r.Header.Get(HeaderSenderAddress), body)
		w.WriteHeader(reply.Status)
		w.Write(reply.Body)
	}))
	t.Cleanup(v.server.Close)

	n.register(v, v.server.URL)

	v.client, err = New(Options{
		HRP:     testHRP,
		Address: v.account(0),
		Key:     v.key,
		Ledger:  n.ledger,
		Store:   s,
		Retry:   RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond, MaxElapsed: time.Second},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return v
}

// register publishes v in the ledger with the given endpoint.
func (n *network) register(v *testVASP, baseURL string) {
	n.ledger.AddAccount(ledger.Account{
		Address: v.onchain,
		Role: ledger.Role{
			Type:          ledger.RoleParentVASP,
			ComplianceKey: jws.PublicKeyHex(v.pub()),
			BaseURL:       baseURL,
		},
	})
}

func (n *network) initPayment(amount uint64) *offchain.PaymentCommand {
	return offchain.InitPayment(offchain.InitParams{
		SenderAddress:   n.alice.account(0x0a),
		ReceiverAddress: n.bob.account(0x0b),
		SenderKycData:   offchain.NewKycData("Alice", "Sender"),
		Amount:          amount,
		Currency:        "XUS",
		Timestamp:       1700000000,
	})
}

// envelope signs cmd's request as from would send it.
func envelope(t *testing.T, from *testVASP, cmd offchain.Command) []byte {
	t.Helper()
	payload, err := json.Marshal(cmd.RequestObject())
	require.NoError(t, err)
	return jws.Encode(payload, from.key)
}

// deliver hands cmd from one VASP to the other without HTTP.
func deliver(t *testing.T, from, to *testVASP, cmd offchain.Command) (Reply, *offchain.CommandResponseObject) {
	t.Helper()
	reply := to.client.Process(context.Background(), "7b2ee8b7-9d5d-4b8c-a6bb-6b1f0a0f1a11", from.account(0), envelope(t, from, cmd))
	return reply, decodeReply(t, to, reply)
}

func decodeReply(t *testing.T, from *testVASP, reply Reply) *offchain.CommandResponseObject {
	t.Helper()
	payload, err := jws.Decode(reply.Body, from.pub())
	require.NoError(t, err)
	resp, err := offchain.DecodeResponse(payload)
	require.NoError(t, err)
	return resp
}

func requireCode(t *testing.T, err error, code offchain.ErrorCode, field string) {
	t.Helper()
	require.Error(t, err)
	e, ok := offchain.AsError(err)
	require.True(t, ok, "not an offchain error: %v", err)
	require.Equal(t, code, e.Code, "error: %v", err)
	if field != "" {
		require.Equal(t, field, e.Field, "error: %v", err)
	}
}
