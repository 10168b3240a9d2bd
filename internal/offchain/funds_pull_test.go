package offchain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offchain/internal/ir"
)

func testApproval(status FundsPullStatus) FundsPullPreApproval {
	return FundsPullPreApproval{
		Address:                senderID,
		BillerAddress:          receiverID,
		FundsPullPreApprovalID: "5185027f-0574-6f55-2668-3a38fdb5de98",
		Scope: FundsPullScope{
			Type:                ScopeConsent,
			ExpirationTimestamp: testTimestamp + 3600,
			MaxCumulativeAmount: &CumulativeAmount{
				Unit:      "week",
				Value:     1,
				MaxAmount: CurrencyAmount{Amount: 1_000_000, Currency: "XUS"},
			},
			MaxTransactionAmount: &CurrencyAmount{Amount: 10_000, Currency: "XUS"},
		},
		Description: "subscription",
		Status:      status,
	}
}

func isSender(address string) bool { return address == senderID }

func TestFundsPullRoundTrip(t *testing.T) {
	cmd := NewFundsPullPreApprovalCommand("00000000-0000-4000-8000-000000000005", RoleBiller, false, testApproval(FundsPullPending))

	data, err := json.Marshal(cmd.RequestObject())
	require.NoError(t, err)
	req, err := DecodeRequest(data)
	require.NoError(t, err)
	require.Equal(t, CommandTypeFundsPullPreApproval, req.CommandType)

	got, err := DecodeFundsPullPayload(req.CID, req.Command, isSender)
	require.NoError(t, err)
	assert.Equal(t, testApproval(FundsPullPending), got.Approval())
	assert.Equal(t, RolePayer, got.MyRole())
	assert.True(t, got.IsInbound())
	assert.Equal(t, senderID, got.MyAddress())
	assert.Equal(t, receiverID, got.OpponentAddress())
	assert.Equal(t, "5185027f-0574-6f55-2668-3a38fdb5de98", got.ReferenceID())
}

func TestFundsPullDecodeErrors(t *testing.T) {
	payload := func() ir.IRObject {
		return NewFundsPullPreApprovalCommand("c", RoleBiller, false, testApproval(FundsPullPending)).Payload()
	}
	approval := func(o ir.IRObject) ir.IRObject { return o["funds_pull_pre_approval"].(ir.IRObject) }

	t.Run("bad status", func(t *testing.T) {
		o := payload()
		approval(o)["status"] = ir.IRString("maybe")
		_, err := DecodeFundsPullPayload("c", o, isSender)
		requireCode(t, err, CodeInvalidFieldValue, "funds_pull_pre_approval.status")
	})

	t.Run("bad scope type", func(t *testing.T) {
		o := payload()
		approval(o)["scope"].(ir.IRObject)["type"] = ir.IRString("forever")
		_, err := DecodeFundsPullPayload("c", o, isSender)
		requireCode(t, err, CodeInvalidFieldValue, "funds_pull_pre_approval.scope.type")
	})

	t.Run("bad unit", func(t *testing.T) {
		o := payload()
		approval(o)["scope"].(ir.IRObject)["max_cumulative_amount"].(ir.IRObject)["unit"] = ir.IRString("decade")
		_, err := DecodeFundsPullPayload("c", o, isSender)
		requireCode(t, err, CodeInvalidFieldValue, "funds_pull_pre_approval.scope.max_cumulative_amount.unit")
	})

	t.Run("not mine", func(t *testing.T) {
		_, err := DecodeFundsPullPayload("c", payload(), func(string) bool { return false })
		requireCode(t, err, CodeUnknownAddress, "")
	})
}

func TestFundsPullValidate(t *testing.T) {
	pending := NewFundsPullPreApprovalCommand("p", RolePayer, true, testApproval(FundsPullPending))
	require.NoError(t, pending.Validate(nil))

	t.Run("payer approves", func(t *testing.T) {
		valid := pending.WithStatus("v", FundsPullValid)
		require.NoError(t, valid.Validate(pending))

		atBiller := NewFundsPullPreApprovalCommand("v", RoleBiller, true, valid.Approval())
		require.NoError(t, atBiller.Validate(pending))

		closed := atBiller.WithStatus("c", FundsPullClosed)
		require.NoError(t, closed.Validate(atBiller))
	})

	t.Run("biller cannot approve", func(t *testing.T) {
		forged := NewFundsPullPreApprovalCommand("v", RolePayer, true, testApproval(FundsPullValid))
		requireCode(t, forged.Validate(pending), CodeInvalidCommandProducer, "")
	})

	t.Run("payer cannot create pending", func(t *testing.T) {
		atBiller := NewFundsPullPreApprovalCommand("p", RoleBiller, true, testApproval(FundsPullPending))
		requireCode(t, atBiller.Validate(nil), CodeInvalidCommandProducer, "")
	})

	t.Run("closed is final", func(t *testing.T) {
		closed := pending.WithStatus("c", FundsPullClosed)
		reopened := closed.WithStatus("r", FundsPullValid)
		requireCode(t, reopened.Validate(closed), CodeInvalidTransition, "")
	})

	t.Run("rejected cannot become valid", func(t *testing.T) {
		rejected := pending.WithStatus("r", FundsPullRejected)
		requireCode(t, rejected.WithStatus("v", FundsPullValid).Validate(rejected), CodeInvalidTransition, "")
	})

	t.Run("must start pending or valid", func(t *testing.T) {
		closed := NewFundsPullPreApprovalCommand("c", RoleBiller, false, testApproval(FundsPullClosed))
		requireCode(t, closed.Validate(nil), CodeInvalidInitialOrPriorNotFound, "")
	})

	t.Run("scope is immutable", func(t *testing.T) {
		a := testApproval(FundsPullValid)
		a.Scope.ExpirationTimestamp++
		next := NewFundsPullPreApprovalCommand("v", RolePayer, false, a)
		requireCode(t, next.Validate(pending), CodeInvalidOverwrite, "funds_pull_pre_approval.scope")
	})
}

func TestReferenceIDCommand(t *testing.T) {
	out := NewReferenceIDCommand("00000000-0000-4000-8000-000000000006", false, "alice", senderID, receiverID, testReference)
	assert.Equal(t, senderID, out.MyAddress())
	assert.Equal(t, receiverID, out.OpponentAddress())

	data, err := json.Marshal(out.RequestObject())
	require.NoError(t, err)
	req, err := DecodeRequest(data)
	require.NoError(t, err)

	in, err := DecodeReferenceIDPayload(req.CID, req.Command)
	require.NoError(t, err)
	assert.True(t, in.IsInbound())
	assert.Equal(t, "alice", in.Sender())
	assert.Equal(t, senderID, in.SenderAddress())
	assert.Equal(t, receiverID, in.MyAddress())
	assert.Equal(t, senderID, in.OpponentAddress())
	assert.Equal(t, testReference, in.ReferenceID())
	assert.Equal(t, ReferenceIDResult(receiverID), in.Result())

	bad := out.Payload()
	bad["reference_id"] = ir.IRString("ref")
	_, err = DecodeReferenceIDPayload("c", bad)
	requireCode(t, err, CodeInvalidFieldValue, "reference_id")
}

func TestCommandUnion(t *testing.T) {
	var cmds []Command = []Command{
		initCommand(t),
		NewReferenceIDCommand("c", false, "alice", senderID, receiverID, testReference),
		NewFundsPullPreApprovalCommand("c", RoleBiller, false, testApproval(FundsPullPending)),
	}
	for _, c := range cmds {
		assert.Equal(t, c.CommandType(), c.RequestObject().CommandType)
		assert.Equal(t, c.CommandType(), string(c.Payload()["_ObjectType"].(ir.IRString)))
	}
}
