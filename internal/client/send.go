package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/offchain/internal/jws"
	"github.com/roach88/offchain/internal/offchain"
)

// Send delivers cmd to the counterparty and returns its verified response.
//
// Transport failures and HTTP statuses other than 200 and 400 are retried
// under the client's RetryPolicy; when retries run out the error wraps
// ErrRetriesExhausted. A failure response is returned together with the
// error it carries.
func (c *Client) Send(ctx context.Context, cmd offchain.Command) (*offchain.CommandResponseObject, error) {
	opponent, err := c.resolve(ctx, cmd.OpponentAddress())
	if err != nil {
		return nil, fmt.Errorf("send %s: resolve counterparty: %w", cmd.CID(), err)
	}

	payload, err := json.Marshal(cmd.RequestObject())
	if err != nil {
		return nil, fmt.Errorf("send %s: marshal request: %w", cmd.CID(), err)
	}
	envelope := jws.Encode(payload, c.key)
	url := strings.TrimRight(opponent.BaseURL, "/") + CommandPath

	start := time.Now()
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * c.retry.Delay
			if c.retry.MaxElapsed > 0 && time.Since(start)+delay > c.retry.MaxElapsed {
				break
			}
			c.logger.Warn("retrying command",
				"cid", cmd.CID(),
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		attempts = attempt

		body, err := c.post(ctx, url, envelope)
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := c.verifyResponse(body, opponent.ComplianceKey, cmd.CID())
		if err != nil {
			return nil, fmt.Errorf("send %s: %w", cmd.CID(), err)
		}
		if err := resp.Err(); err != nil {
			c.logger.Warn("command rejected by counterparty",
				"cid", cmd.CID(),
				"error", resp.Error.String(),
			)
			return resp, err
		}
		c.logger.Info("command accepted",
			"cid", cmd.CID(),
			"type", cmd.CommandType(),
			"reference_id", cmd.ReferenceID(),
		)
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, cmd.CID(), attempts, lastErr)
}

// post performs one delivery attempt. Only 200 and 400 carry a protocol
// response; any other status is a transport failure.
func (c *Client) post(ctx context.Context, url string, envelope []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set(HeaderRequestID, uuid.NewString())
	req.Header.Set(HeaderSenderAddress, c.address)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}
	return body, nil
}

func (c *Client) verifyResponse(body []byte, key []byte, cid string) (*offchain.CommandResponseObject, error) {
	payload, err := jws.Decode(body, key)
	if err != nil {
		return nil, envelopeError(err)
	}
	resp, err := offchain.DecodeResponse(payload)
	if err != nil {
		return nil, err
	}
	if resp.CID != "" && resp.CID != cid {
		return nil, offchain.FieldError(offchain.TypeProtocolError, offchain.CodeInvalidFieldValue, "cid",
			"response cid %s does not match request %s", resp.CID, cid)
	}
	return resp, nil
}

// envelopeError maps a jws failure to its protocol error.
func envelopeError(err error) error {
	switch jws.CodeOf(err) {
	case jws.CodeInvalidHeader:
		return offchain.ProtocolError(offchain.CodeInvalidHeader, "%v", err)
	case jws.CodeInvalidSignature:
		return offchain.ProtocolError(offchain.CodeInvalidJWSSignature, "%v", err)
	default:
		return offchain.ProtocolError(offchain.CodeInvalidJWS, "%v", err)
	}
}

// Submit validates an outbound command against the latest stored revision,
// sends it, and stores it once the counterparty accepts it.
func (c *Client) Submit(ctx context.Context, cmd offchain.Command) (*offchain.CommandResponseObject, error) {
	var priorCID string
	switch cmd := cmd.(type) {
	case *offchain.PaymentCommand:
		prior, err := c.LatestPayment(ctx, cmd.ReferenceID())
		if err != nil {
			return nil, err
		}
		if err := cmd.Validate(prior); err != nil {
			return nil, err
		}
		if prior != nil {
			priorCID = prior.CID()
		}
	case *offchain.FundsPullPreApprovalCommand:
		prior, err := c.latestFundsPull(ctx, cmd.ReferenceID())
		if err != nil {
			return nil, err
		}
		if err := cmd.Validate(prior); err != nil {
			return nil, err
		}
		if prior != nil {
			priorCID = prior.CID()
		}
	case *offchain.ReferenceIDCommand:
		return c.Send(ctx, cmd)
	}

	resp, err := c.Send(ctx, cmd)
	if err != nil {
		return resp, err
	}
	if err := c.save(ctx, cmd, priorCID); err != nil {
		return resp, fmt.Errorf("store accepted command %s: %w", cmd.CID(), err)
	}
	return resp, nil
}
