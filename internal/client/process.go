package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/roach88/offchain/internal/ir"
	"github.com/roach88/offchain/internal/jws"
	"github.com/roach88/offchain/internal/ledger"
	"github.com/roach88/offchain/internal/offchain"
	"github.com/roach88/offchain/internal/store"
)

// Reply is a signed response ready to be written to the wire.
type Reply struct {
	Status int
	Body   []byte
}

// Process handles one inbound request body and returns the signed reply.
//
// Every failure, including malformed headers and envelopes, becomes a
// failure response; Process never returns an error. Responses for a known
// cid are cached, and a retransmission of the same request gets the cached
// reply byte for byte.
func (c *Client) Process(ctx context.Context, requestID, senderAddress string, body []byte) Reply {
	sender, err := c.checkHeaders(ctx, requestID, senderAddress)
	if err != nil {
		return c.reject("", err)
	}

	payload, err := jws.Decode(body, sender.ComplianceKey)
	if err != nil {
		return c.reject("", envelopeError(err))
	}

	req, err := offchain.DecodeRequest(payload)
	if err != nil {
		return c.reject(offchain.RequestCID(payload), err)
	}

	digest, err := ir.RequestDigest(req.ToIR())
	if err != nil {
		return c.reject(req.CID, err)
	}
	cached, ok, err := c.store.Response(ctx, req.CID)
	if err != nil {
		return c.reject(req.CID, err)
	}
	if ok {
		if cached.RequestDigest != digest {
			return c.reject(req.CID, offchain.FieldError(offchain.TypeProtocolError, offchain.CodeConflict, "cid",
				"cid %s was already used for a different request", req.CID))
		}
		c.logger.Debug("replaying cached response", "cid", req.CID)
		return Reply{Status: cached.HTTPStatus, Body: cached.Body}
	}

	result, err := c.dispatch(ctx, req, sender)
	var reply Reply
	if err != nil {
		reply = c.reject(req.CID, err)
	} else {
		c.logger.Info("command accepted",
			"cid", req.CID,
			"type", req.CommandType,
			"sender", senderAddress,
		)
		reply = c.sign(offchain.SuccessResponse(req.CID, result), http.StatusOK)
	}
	if !cacheable(err) || reply.Body == nil {
		return reply
	}

	inserted, err := c.store.SaveResponse(ctx, store.CachedResponse{
		CID:           req.CID,
		RequestDigest: digest,
		Body:          reply.Body,
		HTTPStatus:    reply.Status,
	})
	if err != nil {
		c.logger.Error("cache response", "cid", req.CID, "error", err)
		return reply
	}
	if !inserted {
		// A concurrent delivery of the same cid finished first.
		if cached, ok, err := c.store.Response(ctx, req.CID); err == nil && ok {
			return Reply{Status: cached.HTTPStatus, Body: cached.Body}
		}
	}
	return reply
}

// cacheable reports whether the outcome is final for the cid. Conflicts
// and internal failures may succeed on retry.
func cacheable(err error) bool {
	if err == nil {
		return true
	}
	e, ok := offchain.AsError(err)
	return ok && e.Code != offchain.CodeConflict
}

func (c *Client) checkHeaders(ctx context.Context, requestID, senderAddress string) (*ledger.VASP, error) {
	if requestID == "" {
		return nil, offchain.FieldError(offchain.TypeProtocolError, offchain.CodeMissingHTTPHeader, HeaderRequestID,
			"missing %s header", HeaderRequestID)
	}
	if !offchain.IsUUID(requestID) {
		return nil, offchain.FieldError(offchain.TypeProtocolError, offchain.CodeInvalidHTTPHeader, HeaderRequestID,
			"%s must be a UUID", HeaderRequestID)
	}
	if senderAddress == "" {
		return nil, offchain.FieldError(offchain.TypeProtocolError, offchain.CodeMissingHTTPHeader, HeaderSenderAddress,
			"missing %s header", HeaderSenderAddress)
	}
	vasp, err := c.resolve(ctx, senderAddress)
	if err != nil {
		return nil, offchain.FieldError(offchain.TypeProtocolError, offchain.CodeInvalidHTTPHeader, HeaderSenderAddress,
			"cannot resolve sender %s: %v", senderAddress, err)
	}
	return vasp, nil
}

// reject logs err and signs a failure response.
func (c *Client) reject(cid string, err error) Reply {
	resp := offchain.FailureResponse(cid, err)
	c.logger.Warn("command rejected",
		"cid", cid,
		"type", resp.Error.Type,
		"code", resp.Error.Code,
		"field", resp.Error.Field,
		"error", err,
	)
	return c.sign(resp, http.StatusBadRequest)
}

func (c *Client) sign(resp *offchain.CommandResponseObject, status int) Reply {
	payload, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("marshal response", "cid", resp.CID, "error", err)
		return Reply{Status: http.StatusInternalServerError}
	}
	return Reply{Status: status, Body: jws.Encode(payload, c.key)}
}

// dispatch validates and stores an inbound command. sender is the VASP the
// request headers resolved to.
func (c *Client) dispatch(ctx context.Context, req *offchain.CommandRequestObject, sender *ledger.VASP) (ir.IRObject, error) {
	switch req.CommandType {
	case offchain.CommandTypePayment:
		return nil, c.processPayment(ctx, req, sender)
	case offchain.CommandTypeReferenceID:
		return c.processReferenceID(ctx, req, sender)
	case offchain.CommandTypeFundsPullPreApproval:
		return nil, c.processFundsPull(ctx, req, sender)
	}
	return nil, offchain.FieldError(offchain.TypeProtocolError, offchain.CodeUnknownCommandType, "command_type",
		"unknown command type %q", req.CommandType)
}

// checkCounterparty requires the account identifier at field to be served
// by the VASP that signed the request.
func (c *Client) checkCounterparty(ctx context.Context, address, field string, sender *ledger.VASP) error {
	vasp, err := c.resolve(ctx, address)
	if err != nil || vasp.Address != sender.Address {
		return offchain.FieldError(offchain.TypeCommandError, offchain.CodeUnknownAddress, field,
			"%s is not served by the requesting VASP", address)
	}
	return nil
}

func (c *Client) processPayment(ctx context.Context, req *offchain.CommandRequestObject, sender *ledger.VASP) error {
	p, err := offchain.DecodePaymentPayload(req.Command)
	if err != nil {
		return err
	}

	var mine offchain.Actor
	switch {
	case c.IsMine(ctx, p.Receiver.Address):
		mine = offchain.ActorReceiver
	case c.IsMine(ctx, p.Sender.Address):
		mine = offchain.ActorSender
	default:
		return offchain.FieldError(offchain.TypeCommandError, offchain.CodeUnknownAddress,
			string(offchain.PathReceiverAddress), "neither sender nor receiver belongs to this VASP")
	}
	cmd := offchain.NewPaymentCommand(req.CID, mine, true, p)
	if err := c.checkCounterparty(ctx, cmd.OpponentAddress(),
		"payment."+string(mine.Opponent())+".address", sender); err != nil {
		return err
	}

	prior, err := c.LatestPayment(ctx, cmd.ReferenceID())
	if err != nil {
		return err
	}
	if err := cmd.Validate(prior); err != nil {
		return err
	}

	state, err := cmd.State()
	if err != nil {
		return err
	}
	if prior == nil {
		required, err := cmd.RequiresTravelRule(ctx, c.ledger)
		if err != nil {
			return err
		}
		if !required {
			return offchain.CommandError(offchain.CodeNoKycNeeded,
				"amount is under the dual attestation limit")
		}
	}
	if state.ID == offchain.StateRSend && mine == offchain.ActorSender {
		required, err := cmd.RequiresTravelRule(ctx, c.ledger)
		if err != nil {
			return err
		}
		if required {
			if err := cmd.VerifyRecipientSignature(c.hrp, sender.ComplianceKey); err != nil {
				return err
			}
		}
	}

	priorCID := ""
	if prior != nil {
		priorCID = prior.CID()
	}
	return c.save(ctx, cmd, priorCID)
}

func (c *Client) processReferenceID(ctx context.Context, req *offchain.CommandRequestObject, sender *ledger.VASP) (ir.IRObject, error) {
	cmd, err := offchain.DecodeReferenceIDPayload(req.CID, req.Command)
	if err != nil {
		return nil, err
	}
	if !c.IsMine(ctx, cmd.Receiver()) {
		return nil, offchain.FieldError(offchain.TypeCommandError, offchain.CodeUnknownAddress, "receiver",
			"receiver %s does not belong to this VASP", cmd.Receiver())
	}
	if err := c.checkCounterparty(ctx, cmd.SenderAddress(), "sender_address", sender); err != nil {
		return nil, err
	}

	ok, err := c.store.ReserveReferenceID(ctx, cmd.ReferenceID(), cmd.SenderAddress())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, offchain.FieldError(offchain.TypeCommandError, offchain.CodeDuplicateReferenceID, "reference_id",
			"reference id %s is already in use", cmd.ReferenceID())
	}
	return cmd.Result(), nil
}

func (c *Client) processFundsPull(ctx context.Context, req *offchain.CommandRequestObject, sender *ledger.VASP) error {
	cmd, err := offchain.DecodeFundsPullPayload(req.CID, req.Command, func(address string) bool {
		return c.IsMine(ctx, address)
	})
	if err != nil {
		return err
	}
	field := "funds_pull_pre_approval.address"
	if cmd.MyRole() == offchain.RolePayer {
		field = "funds_pull_pre_approval.biller_address"
	}
	if err := c.checkCounterparty(ctx, cmd.OpponentAddress(), field, sender); err != nil {
		return err
	}

	prior, err := c.latestFundsPull(ctx, cmd.ReferenceID())
	if err != nil {
		return err
	}
	if err := cmd.Validate(prior); err != nil {
		return err
	}

	priorCID := ""
	if prior != nil {
		priorCID = prior.CID()
	}
	return c.save(ctx, cmd, priorCID)
}
