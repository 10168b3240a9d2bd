package offchain

import (
	"github.com/roach88/offchain/internal/condition"
	"github.com/roach88/offchain/internal/ir"
)

// Field paths of a payment command, as used by state conditions and in
// error fields.
const (
	PathReferenceID                condition.Path = "payment.reference_id"
	PathRecipientSignature         condition.Path = "payment.recipient_signature"
	PathDescription                condition.Path = "payment.description"
	PathOriginalPaymentReferenceID condition.Path = "payment.original_payment_reference_id"
	PathActionAmount               condition.Path = "payment.action.amount"
	PathActionCurrency             condition.Path = "payment.action.currency"

	PathSenderAddress           condition.Path = "payment.sender.address"
	PathSenderStatus            condition.Path = "payment.sender.status.status"
	PathSenderAbortCode         condition.Path = "payment.sender.status.abort_code"
	PathSenderKycData           condition.Path = "payment.sender.kyc_data"
	PathSenderAdditionalKycData condition.Path = "payment.sender.additional_kyc_data"
	PathSenderMetadata          condition.Path = "payment.sender.metadata"

	PathReceiverAddress           condition.Path = "payment.receiver.address"
	PathReceiverStatus            condition.Path = "payment.receiver.status.status"
	PathReceiverAbortCode         condition.Path = "payment.receiver.status.abort_code"
	PathReceiverKycData           condition.Path = "payment.receiver.kyc_data"
	PathReceiverAdditionalKycData condition.Path = "payment.receiver.additional_kyc_data"
	PathReceiverMetadata          condition.Path = "payment.receiver.metadata"
)

type accessor func(p *Payment) ir.IRValue

// accessors resolves every payment path a condition may name without
// reflection. A nil result means the field is absent.
var accessors = map[condition.Path]accessor{
	PathReferenceID:                func(p *Payment) ir.IRValue { return optString(p.ReferenceID) },
	PathRecipientSignature:         func(p *Payment) ir.IRValue { return optString(p.RecipientSignature) },
	PathDescription:                func(p *Payment) ir.IRValue { return optString(p.Description) },
	PathOriginalPaymentReferenceID: func(p *Payment) ir.IRValue { return optString(p.OriginalPaymentReferenceID) },
	PathActionAmount:               func(p *Payment) ir.IRValue { return ir.IRInt(p.Action.Amount) },
	PathActionCurrency:             func(p *Payment) ir.IRValue { return optString(p.Action.Currency) },
}

func init() {
	for _, slot := range []struct {
		actor                                         Actor
		address, status, abort, kyc, additional, meta condition.Path
	}{
		{ActorSender, PathSenderAddress, PathSenderStatus, PathSenderAbortCode, PathSenderKycData, PathSenderAdditionalKycData, PathSenderMetadata},
		{ActorReceiver, PathReceiverAddress, PathReceiverStatus, PathReceiverAbortCode, PathReceiverKycData, PathReceiverAdditionalKycData, PathReceiverMetadata},
	} {
		a := slot.actor
		accessors[slot.address] = func(p *Payment) ir.IRValue { return optString(p.Actor(a).Address) }
		accessors[slot.status] = func(p *Payment) ir.IRValue { return optString(string(p.Actor(a).Status.Status)) }
		accessors[slot.abort] = func(p *Payment) ir.IRValue { return optString(string(p.Actor(a).Status.AbortCode)) }
		accessors[slot.kyc] = func(p *Payment) ir.IRValue {
			if k := p.Actor(a).KycData; k != nil {
				return k.toIR()
			}
			return nil
		}
		accessors[slot.additional] = func(p *Payment) ir.IRValue { return optString(p.Actor(a).AdditionalKycData) }
		accessors[slot.meta] = func(p *Payment) ir.IRValue {
			if m := p.Actor(a).Metadata; m != nil {
				b := builder{}
				b.strings("v", m)
				return b["v"]
			}
			return nil
		}
	}
}

func optString(s string) ir.IRValue {
	if s == "" {
		return nil
	}
	return ir.IRString(s)
}

// Resolve implements condition.Resolver over the payment record. Paths
// not in the accessor table resolve as absent.
func (p *Payment) Resolve(path condition.Path) (ir.IRValue, bool) {
	get, ok := accessors[path]
	if !ok {
		return nil, false
	}
	v := get(p)
	if ir.IsAbsent(v) {
		return nil, false
	}
	return v, true
}
