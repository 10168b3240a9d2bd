package offchain

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/offchain/internal/condition"
	"github.com/roach88/offchain/internal/ir"
	"github.com/roach88/offchain/internal/ledger"
	"github.com/roach88/offchain/internal/machine"
)

// CommandTypePayment is the command_type of payment commands.
const CommandTypePayment = "PaymentCommand"

// PaymentCommand is one revision of a payment as seen by one VASP.
//
// PaymentCommand is immutable: accessors return copies, and new revisions
// are derived with Revise.
type PaymentCommand struct {
	cid     string
	myActor Actor
	inbound bool
	payment Payment
}

// NewPaymentCommand wraps payment as a command where the local VASP plays
// myActor. Inbound commands were produced by the counterparty.
func NewPaymentCommand(cid string, myActor Actor, inbound bool, payment Payment) *PaymentCommand {
	return &PaymentCommand{
		cid:     cid,
		myActor: myActor,
		inbound: inbound,
		payment: payment.Clone(),
	}
}

// InitParams describes a new payment. Empty ReferenceID and CID are
// generated; a zero Timestamp is taken from the wall clock.
type InitParams struct {
	CID                        string
	ReferenceID                string
	SenderAddress              string
	ReceiverAddress            string
	SenderKycData              *KycData
	Amount                     uint64
	Currency                   string
	Timestamp                  int64
	Description                string
	OriginalPaymentReferenceID string
}

// InitPayment creates the first revision of a payment, sent by the sender.
// An amount above math.MaxInt64 cannot be sent; Validate refuses it.
func InitPayment(p InitParams) *PaymentCommand {
	if p.ReferenceID == "" {
		p.ReferenceID = uuid.NewString()
	}
	if p.CID == "" {
		p.CID = uuid.NewString()
	}
	if p.Timestamp == 0 {
		p.Timestamp = time.Now().Unix()
	}
	return NewPaymentCommand(p.CID, ActorSender, false, Payment{
		ReferenceID: p.ReferenceID,
		Sender: PaymentActor{
			Address: p.SenderAddress,
			Status:  StatusObject{Status: StatusNeedsKycData},
			KycData: p.SenderKycData,
		},
		Receiver: PaymentActor{
			Address: p.ReceiverAddress,
			Status:  StatusObject{Status: StatusNone},
		},
		Action: PaymentAction{
			Amount:    p.Amount,
			Currency:  p.Currency,
			Action:    ActionCharge,
			Timestamp: p.Timestamp,
		},
		Description:                p.Description,
		OriginalPaymentReferenceID: p.OriginalPaymentReferenceID,
	})
}

// CID returns the command id.
func (c *PaymentCommand) CID() string { return c.cid }

// ReferenceID returns the payment's reference id.
func (c *PaymentCommand) ReferenceID() string { return c.payment.ReferenceID }

// CommandType returns CommandTypePayment.
func (c *PaymentCommand) CommandType() string { return CommandTypePayment }

// IsInbound reports whether the counterparty produced this revision.
func (c *PaymentCommand) IsInbound() bool { return c.inbound }

// MyActor returns the local VASP's side.
func (c *PaymentCommand) MyActor() Actor { return c.myActor }

// MyAddress returns the local actor's account identifier.
func (c *PaymentCommand) MyAddress() string { return c.payment.Actor(c.myActor).Address }

// OpponentAddress returns the counterparty actor's account identifier.
func (c *PaymentCommand) OpponentAddress() string {
	return c.payment.Actor(c.myActor.Opponent()).Address
}

// Payment returns a copy of the payment record.
func (c *PaymentCommand) Payment() Payment { return c.payment.Clone() }

// Resolve implements condition.Resolver.
func (c *PaymentCommand) Resolve(path condition.Path) (ir.IRValue, bool) {
	return c.payment.Resolve(path)
}

// Payload returns the command payload carried in a request envelope.
func (c *PaymentCommand) Payload() ir.IRObject {
	return ir.IRObject{
		fieldObjectType: ir.IRString(CommandTypePayment),
		"payment":       c.payment.ToIR(),
	}
}

// RequestObject wraps the command in a request envelope.
func (c *PaymentCommand) RequestObject() *CommandRequestObject {
	return &CommandRequestObject{CID: c.cid, CommandType: CommandTypePayment, Command: c.Payload()}
}

// State classifies the payment.
//
// A payment structurally in some state but missing that state's required
// fields fails with missing_field naming the first missing path. A payment
// fitting no state also fails with missing_field; one fitting several
// states fails with invalid_object.
func (c *PaymentCommand) State() (*machine.State, error) {
	s, err := PaymentStates.MatchState(c)
	if err == nil {
		return s, nil
	}

	var ve *condition.ValidationError
	if errors.As(err, &ve) {
		field := ""
		if len(ve.Paths) > 0 {
			field = string(ve.Paths[0])
		}
		return nil, FieldError(TypeCommandError, CodeMissingField, field, "%v", err)
	}
	var none *machine.NoStateMatchedError
	if errors.As(err, &none) {
		return nil, FieldError(TypeCommandError, CodeMissingField, "payment", "actor statuses fit no payment state")
	}
	return nil, FieldError(TypeCommandError, CodeInvalidObject, "payment", "%v", err)
}

// Validate checks this revision against prior, the latest revision the
// local VASP accepted, or nil when there is none.
func (c *PaymentCommand) Validate(prior *PaymentCommand) error {
	// Amounts travel as JSON integers in the signed int64 range.
	if c.payment.Action.Amount > math.MaxInt64 {
		return FieldError(TypeCommandError, CodeInvalidFieldValue, string(PathActionAmount),
			"amount %d exceeds %d", c.payment.Action.Amount, int64(math.MaxInt64))
	}

	state, err := c.State()
	if err != nil {
		return err
	}

	if c.inbound {
		if producer := c.myActor.Opponent(); TriggerActor(state) != producer {
			return CommandError(CodeInvalidCommandProducer,
				"state %s must be produced by %s, got %s", state.ID, TriggerActor(state), producer)
		}
	}

	if prior == nil {
		if !PaymentStates.IsInitial(state) {
			return CommandError(CodeInvalidInitialOrPriorNotFound,
				"state %s is not initial and no prior payment %s exists", state.ID, c.ReferenceID())
		}
		return nil
	}

	priorState, err := prior.State()
	if err != nil {
		return err
	}

	if c.inbound {
		mine := c.myActor
		if !ir.Equal(prior.payment.Actor(mine).toIR(), c.payment.Actor(mine).toIR()) {
			return FieldError(TypeCommandError, CodeInvalidOverwrite, "payment."+string(mine),
				"%s actor object may not be changed by the counterparty", mine)
		}
	}

	if err := checkOverwrites("payment", paymentSchema, prior.payment.ToIR(), c.payment.ToIR()); err != nil {
		return err
	}

	if !PaymentStates.IsValidTransition(priorState, state) {
		return CommandError(CodeInvalidTransition, "invalid transition %s -> %s", priorState.ID, state.ID)
	}
	return nil
}

// IsValidTransition reports whether prior -> c is a legal state change.
func (c *PaymentCommand) IsValidTransition(prior *PaymentCommand) bool {
	from, err := prior.State()
	if err != nil {
		return false
	}
	to, err := c.State()
	if err != nil {
		return false
	}
	return PaymentStates.IsValidTransition(from, to)
}

// IsInitial reports whether the payment is in an initial state.
// Unclassifiable payments report false.
func (c *PaymentCommand) IsInitial() bool {
	s, err := c.State()
	return err == nil && PaymentStates.IsInitial(s)
}

// IsBothReady reports whether the payment reached READY.
func (c *PaymentCommand) IsBothReady() bool {
	s, err := c.State()
	return err == nil && s == Ready
}

// IsAbort reports whether either actor aborted.
func (c *PaymentCommand) IsAbort() bool {
	s, err := c.State()
	return err == nil && (s == SAbort || s == RAbort)
}

// IsTerminal reports whether no further revision can follow.
func (c *PaymentCommand) IsTerminal() bool {
	s, err := c.State()
	return err == nil && PaymentStates.IsTerminal(s)
}

// FollowUpAction returns the action the local actor must take next.
// ok is false when it is the counterparty's turn, the payment is finished,
// or the payment cannot be classified.
func (c *PaymentCommand) FollowUpAction() (ActionKind, bool) {
	s, err := c.State()
	if err != nil {
		return "", false
	}
	return FollowUp(c.myActor, s)
}

// RequiresTravelRule reports whether the payment amount, converted to the
// base currency, meets the ledger's dual-attestation limit. A currency the
// ledger does not know is an invalid_field_value error on the currency.
func (c *PaymentCommand) RequiresTravelRule(ctx context.Context, rpc ledger.Client) (bool, error) {
	under, err := ledger.IsUnderDualAttestationLimit(ctx, rpc, c.payment.Action.Currency, c.payment.Action.Amount)
	if errors.Is(err, ledger.ErrUnknownCurrency) {
		return false, FieldError(TypeCommandError, CodeInvalidFieldValue, string(PathActionCurrency),
			"unknown currency %q", c.payment.Action.Currency)
	}
	if err != nil {
		return false, err
	}
	return !under, nil
}

// Revise starts a new outbound revision that may change the local actor's
// slot and the recipient signature. The receiver is untouched.
func (c *PaymentCommand) Revise() *Revision {
	p := c.payment.Clone()
	return &Revision{myActor: c.myActor, payment: p}
}

// Revision builds the next revision of a payment. Each With method returns
// the same builder; Build returns a new command and leaves the source
// revision unchanged.
type Revision struct {
	myActor Actor
	cid     string
	payment Payment
}

func (r *Revision) mine() *PaymentActor { return r.payment.Actor(r.myActor) }

// WithCID sets the command id; Build generates one otherwise.
func (r *Revision) WithCID(cid string) *Revision {
	r.cid = cid
	return r
}

// WithStatus sets the local actor's status and clears abort details.
func (r *Revision) WithStatus(s Status) *Revision {
	r.mine().Status = StatusObject{Status: s}
	return r
}

// WithAbort sets the local actor's status to abort.
func (r *Revision) WithAbort(code AbortCode, message string) *Revision {
	r.mine().Status = StatusObject{Status: StatusAbort, AbortCode: code, AbortMessage: message}
	return r
}

// WithKycData sets the local actor's KYC data.
func (r *Revision) WithKycData(k *KycData) *Revision {
	if k != nil {
		clone := k.clone()
		k = &clone
	}
	r.mine().KycData = k
	return r
}

// WithAdditionalKycData sets the local actor's additional KYC data.
func (r *Revision) WithAdditionalKycData(s string) *Revision {
	r.mine().AdditionalKycData = s
	return r
}

// WithMetadata replaces the local actor's metadata.
func (r *Revision) WithMetadata(m ...string) *Revision {
	r.mine().Metadata = append([]string{}, m...)
	return r
}

// WithRecipientSignature sets the travel-rule signature.
func (r *Revision) WithRecipientSignature(sig string) *Revision {
	r.payment.RecipientSignature = sig
	return r
}

// Build returns the revision as a new outbound command.
func (r *Revision) Build() *PaymentCommand {
	cid := r.cid
	if cid == "" {
		cid = uuid.NewString()
	}
	return NewPaymentCommand(cid, r.myActor, false, r.payment)
}
