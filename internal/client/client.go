// Package client implements both ends of the off-chain protocol for one
// VASP: Send and Submit deliver signed commands to a counterparty, Process
// handles inbound requests and produces signed responses.
package client

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/offchain/internal/identifier"
	"github.com/roach88/offchain/internal/ledger"
	"github.com/roach88/offchain/internal/offchain"
	"github.com/roach88/offchain/internal/store"
)

// HTTP contract.
const (
	CommandPath         = "/v2/command"
	HeaderRequestID     = "X-Request-ID"
	HeaderSenderAddress = "X-Request-Sender-Address"
	ContentType         = "application/jose"
)

// maxBodySize caps request and response envelopes.
const maxBodySize = 1 << 20

// RetryPolicy bounds outbound delivery. The n-th retry waits n*Delay; no
// retry starts once MaxElapsed would be exceeded.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	MaxElapsed  time.Duration
}

// DefaultRetry is used when Options leaves Retry unset.
var DefaultRetry = RetryPolicy{
	MaxAttempts: 3,
	Delay:       time.Second,
	MaxElapsed:  30 * time.Second,
}

// ErrRetriesExhausted wraps the last transport error of a failed Send.
var ErrRetriesExhausted = errors.New("command delivery failed")

// Options configures a Client.
type Options struct {
	// HRP is the account identifier network prefix.
	HRP string
	// Address is the local parent VASP's account identifier.
	Address string
	// Key is the local compliance signing key.
	Key ed25519.PrivateKey

	Ledger ledger.Client
	Store  *store.Store

	HTTPClient *http.Client
	Retry      RetryPolicy
	Logger     *slog.Logger
}

// Client is a protocol participant.
//
// Thread-safety: all methods are safe for concurrent use.
type Client struct {
	hrp     string
	address string
	me      identifier.Address
	key     ed25519.PrivateKey

	ledger ledger.Client
	store  *store.Store

	http   *http.Client
	retry  RetryPolicy
	logger *slog.Logger
}

// New validates opts and creates a Client.
func New(opts Options) (*Client, error) {
	if opts.Ledger == nil || opts.Store == nil {
		return nil, fmt.Errorf("client: ledger and store are required")
	}
	if len(opts.Key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("client: invalid compliance key length %d", len(opts.Key))
	}
	id, err := identifier.Decode(opts.HRP, opts.Address)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	c := &Client{
		hrp:     opts.HRP,
		address: opts.Address,
		me:      id.Address,
		key:     opts.Key,
		ledger:  opts.Ledger,
		store:   opts.Store,
		http:    opts.HTTPClient,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.retry.MaxAttempts <= 0 {
		c.retry = DefaultRetry
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Address returns the local account identifier.
func (c *Client) Address() string { return c.address }

// HRP returns the network prefix.
func (c *Client) HRP() string { return c.hrp }

// Key returns the local compliance key.
func (c *Client) Key() ed25519.PrivateKey { return c.key }

// Ledger returns the ledger collaborator.
func (c *Client) Ledger() ledger.Client { return c.ledger }

// IsMine reports whether the account identifier s belongs to the local
// VASP, directly or as one of its child accounts.
func (c *Client) IsMine(ctx context.Context, s string) bool {
	id, err := identifier.Decode(c.hrp, s)
	if err != nil {
		return false
	}
	if id.Address == c.me {
		return true
	}
	vasp, err := ledger.ResolveVASP(ctx, c.ledger, id.Address)
	return err == nil && vasp.Address == c.me
}

// resolve returns the VASP serving the account identifier s.
func (c *Client) resolve(ctx context.Context, s string) (*ledger.VASP, error) {
	id, err := identifier.Decode(c.hrp, s)
	if err != nil {
		return nil, err
	}
	return ledger.ResolveVASP(ctx, c.ledger, id.Address)
}

// revisionOf converts an accepted command to its stored form.
func revisionOf(cmd offchain.Command) (store.Revision, error) {
	rev := store.Revision{
		ObjectID:    cmd.ReferenceID(),
		CID:         cmd.CID(),
		CommandType: cmd.CommandType(),
		Inbound:     cmd.IsInbound(),
		Payload:     cmd.Payload(),
	}
	switch cmd := cmd.(type) {
	case *offchain.PaymentCommand:
		state, err := cmd.State()
		if err != nil {
			return store.Revision{}, err
		}
		rev.Role = string(cmd.MyActor())
		rev.State = state.ID
		rev.Terminal = offchain.PaymentStates.IsTerminal(state)
	case *offchain.FundsPullPreApprovalCommand:
		rev.Role = string(cmd.MyRole())
		rev.State = string(cmd.Approval().Status)
		rev.Terminal = cmd.IsTerminal()
	case *offchain.ReferenceIDCommand:
		return store.Revision{}, fmt.Errorf("reference id commands are not stored as revisions")
	}
	return rev, nil
}

// save stores cmd as the successor of priorCID. A lost race is reported as
// a conflict protocol error so the counterparty retries.
func (c *Client) save(ctx context.Context, cmd offchain.Command, priorCID string) error {
	rev, err := revisionOf(cmd)
	if err != nil {
		return err
	}
	if _, err := c.store.SaveRevision(ctx, rev, priorCID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return offchain.ProtocolError(offchain.CodeConflict, "%v", err)
		}
		return err
	}
	return nil
}

// LatestPayment loads the latest stored revision of a payment, or nil.
func (c *Client) LatestPayment(ctx context.Context, referenceID string) (*offchain.PaymentCommand, error) {
	rev, ok, err := c.store.Latest(ctx, referenceID)
	if err != nil || !ok {
		return nil, err
	}
	if rev.CommandType != offchain.CommandTypePayment {
		return nil, offchain.FieldError(offchain.TypeCommandError, offchain.CodeDuplicateReferenceID,
			string(offchain.PathReferenceID), "reference id %s is used by a %s", referenceID, rev.CommandType)
	}
	return PaymentFromRevision(rev)
}

// PaymentFromRevision rebuilds a payment command from its stored form.
func PaymentFromRevision(rev store.Revision) (*offchain.PaymentCommand, error) {
	p, err := offchain.DecodePaymentPayload(rev.Payload)
	if err != nil {
		return nil, fmt.Errorf("stored payment %s: %w", rev.CID, err)
	}
	return offchain.NewPaymentCommand(rev.CID, offchain.Actor(rev.Role), rev.Inbound, p), nil
}

func (c *Client) latestFundsPull(ctx context.Context, id string) (*offchain.FundsPullPreApprovalCommand, error) {
	rev, ok, err := c.store.Latest(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	if rev.CommandType != offchain.CommandTypeFundsPullPreApproval {
		return nil, offchain.FieldError(offchain.TypeCommandError, offchain.CodeDuplicateReferenceID,
			"funds_pull_pre_approval.funds_pull_pre_approval_id", "id %s is used by a %s", id, rev.CommandType)
	}
	stored, err := offchain.DecodeFundsPullPayload(rev.CID, rev.Payload, func(string) bool { return true })
	if err != nil {
		return nil, fmt.Errorf("stored pre-approval %s: %w", rev.CID, err)
	}
	return offchain.NewFundsPullPreApprovalCommand(rev.CID, offchain.FundsPullRole(rev.Role), rev.Inbound, stored.Approval()), nil
}
