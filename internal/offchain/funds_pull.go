package offchain

import (
	"github.com/roach88/offchain/internal/ir"
)

// CommandTypeFundsPullPreApproval is the command_type of pre-approvals.
const CommandTypeFundsPullPreApproval = "FundsPullPreApprovalCommand"

// FundsPullStatus is the status of a pre-approval.
type FundsPullStatus string

const (
	FundsPullPending  FundsPullStatus = "pending"
	FundsPullValid    FundsPullStatus = "valid"
	FundsPullRejected FundsPullStatus = "rejected"
	FundsPullClosed   FundsPullStatus = "closed"
)

// ScopeType is what the payer approves.
type ScopeType string

const (
	ScopeConsent        ScopeType = "consent"
	ScopeSaveSubAccount ScopeType = "save_sub_account"
)

// FundsPullRole names a side of a pre-approval.
type FundsPullRole string

const (
	RolePayer  FundsPullRole = "payer"
	RoleBiller FundsPullRole = "biller"
)

// CurrencyAmount is an amount in a currency.
type CurrencyAmount struct {
	Amount   uint64
	Currency string
}

// CumulativeAmount caps the total pulled per time unit.
type CumulativeAmount struct {
	Unit      string
	Value     int64
	MaxAmount CurrencyAmount
}

// FundsPullScope bounds what the biller may pull.
type FundsPullScope struct {
	Type                 ScopeType
	ExpirationTimestamp  int64
	MaxCumulativeAmount  *CumulativeAmount
	MaxTransactionAmount *CurrencyAmount
}

// FundsPullPreApproval authorizes a biller to pull funds from a payer.
type FundsPullPreApproval struct {
	Address                string
	BillerAddress          string
	FundsPullPreApprovalID string
	Scope                  FundsPullScope
	Description            string
	Status                 FundsPullStatus
}

var fundsPullTransitions = map[FundsPullStatus][]FundsPullStatus{
	FundsPullPending: {FundsPullValid, FundsPullRejected, FundsPullClosed},
	FundsPullValid:   {FundsPullClosed},
}

// fundsPullProducer is the role allowed to move a pre-approval into a
// status. Closing is open to both sides and has no entry.
var fundsPullProducer = map[FundsPullStatus]FundsPullRole{
	FundsPullPending:  RoleBiller,
	FundsPullValid:    RolePayer,
	FundsPullRejected: RolePayer,
}

var fundsPullSchema = []fieldSpec{
	{name: "funds_pull_pre_approval_id", tag: immutable},
	{name: "address", tag: immutable},
	{name: "biller_address", tag: immutable},
	{name: "scope", tag: immutable},
	{name: "description", tag: writeOnce},
}

// FundsPullPreApprovalCommand carries one revision of a pre-approval.
type FundsPullPreApprovalCommand struct {
	cid      string
	inbound  bool
	myRole   FundsPullRole
	approval FundsPullPreApproval
}

// NewFundsPullPreApprovalCommand wraps approval as a command where the local
// VASP plays myRole.
func NewFundsPullPreApprovalCommand(cid string, myRole FundsPullRole, inbound bool, approval FundsPullPreApproval) *FundsPullPreApprovalCommand {
	return &FundsPullPreApprovalCommand{cid: cid, inbound: inbound, myRole: myRole, approval: approval.clone()}
}

func (a FundsPullPreApproval) clone() FundsPullPreApproval {
	if a.Scope.MaxCumulativeAmount != nil {
		c := *a.Scope.MaxCumulativeAmount
		a.Scope.MaxCumulativeAmount = &c
	}
	if a.Scope.MaxTransactionAmount != nil {
		t := *a.Scope.MaxTransactionAmount
		a.Scope.MaxTransactionAmount = &t
	}
	return a
}

// CID returns the command id.
func (c *FundsPullPreApprovalCommand) CID() string { return c.cid }

// CommandType returns CommandTypeFundsPullPreApproval.
func (c *FundsPullPreApprovalCommand) CommandType() string { return CommandTypeFundsPullPreApproval }

// ReferenceID returns the pre-approval id.
func (c *FundsPullPreApprovalCommand) ReferenceID() string {
	return c.approval.FundsPullPreApprovalID
}

// IsInbound reports whether the counterparty sent the command.
func (c *FundsPullPreApprovalCommand) IsInbound() bool { return c.inbound }

// MyRole returns the local VASP's role.
func (c *FundsPullPreApprovalCommand) MyRole() FundsPullRole { return c.myRole }

// Approval returns a copy of the pre-approval.
func (c *FundsPullPreApprovalCommand) Approval() FundsPullPreApproval { return c.approval.clone() }

// MyAddress returns the local account identifier.
func (c *FundsPullPreApprovalCommand) MyAddress() string {
	if c.myRole == RolePayer {
		return c.approval.Address
	}
	return c.approval.BillerAddress
}

// OpponentAddress returns the counterparty's account identifier.
func (c *FundsPullPreApprovalCommand) OpponentAddress() string {
	if c.myRole == RolePayer {
		return c.approval.BillerAddress
	}
	return c.approval.Address
}

// IsTerminal reports whether no further status change is allowed.
func (c *FundsPullPreApprovalCommand) IsTerminal() bool {
	return len(fundsPullTransitions[c.approval.Status]) == 0
}

// WithStatus returns a new outbound revision with status s.
func (c *FundsPullPreApprovalCommand) WithStatus(cid string, s FundsPullStatus) *FundsPullPreApprovalCommand {
	next := c.approval.clone()
	next.Status = s
	return NewFundsPullPreApprovalCommand(cid, c.myRole, false, next)
}

// Payload implements Command.
func (c *FundsPullPreApprovalCommand) Payload() ir.IRObject {
	return ir.IRObject{
		fieldObjectType:           ir.IRString(CommandTypeFundsPullPreApproval),
		"funds_pull_pre_approval": c.approval.ToIR(),
	}
}

// RequestObject implements Command.
func (c *FundsPullPreApprovalCommand) RequestObject() *CommandRequestObject {
	return &CommandRequestObject{CID: c.cid, CommandType: CommandTypeFundsPullPreApproval, Command: c.Payload()}
}

// Validate checks this revision against prior, or nil when there is none.
func (c *FundsPullPreApprovalCommand) Validate(prior *FundsPullPreApprovalCommand) error {
	status := c.approval.Status

	if c.inbound {
		if want, ok := fundsPullProducer[status]; ok && want == c.myRole {
			return CommandError(CodeInvalidCommandProducer,
				"status %s must be produced by %s", status, want)
		}
	}

	if prior == nil {
		if status != FundsPullPending && status != FundsPullValid {
			return CommandError(CodeInvalidInitialOrPriorNotFound,
				"new pre-approval %s must be pending or valid, got %s", c.ReferenceID(), status)
		}
		return nil
	}

	if err := checkOverwrites("funds_pull_pre_approval", fundsPullSchema, prior.approval.ToIR(), c.approval.ToIR()); err != nil {
		return err
	}

	for _, to := range fundsPullTransitions[prior.approval.Status] {
		if to == status {
			return nil
		}
	}
	return CommandError(CodeInvalidTransition, "invalid transition %s -> %s", prior.approval.Status, status)
}

// ToIR encodes the pre-approval in its wire shape.
func (a FundsPullPreApproval) ToIR() ir.IRObject {
	scope := builder{
		"type":                 ir.IRString(a.Scope.Type),
		"expiration_timestamp": ir.IRInt(a.Scope.ExpirationTimestamp),
	}
	if m := a.Scope.MaxCumulativeAmount; m != nil {
		scope["max_cumulative_amount"] = ir.IRObject{
			"unit":       ir.IRString(m.Unit),
			"value":      ir.IRInt(m.Value),
			"max_amount": m.MaxAmount.toIR(),
		}
	}
	if m := a.Scope.MaxTransactionAmount; m != nil {
		scope["max_transaction_amount"] = m.toIR()
	}

	b := builder{
		"address":                    ir.IRString(a.Address),
		"biller_address":             ir.IRString(a.BillerAddress),
		"funds_pull_pre_approval_id": ir.IRString(a.FundsPullPreApprovalID),
		"scope":                      ir.IRObject(scope),
		"status":                     ir.IRString(a.Status),
	}
	b.str("description", a.Description)
	return ir.IRObject(b)
}

func (c CurrencyAmount) toIR() ir.IRObject {
	return ir.IRObject{"amount": ir.IRInt(c.Amount), "currency": ir.IRString(c.Currency)}
}

// DecodeFundsPullPayload decodes an inbound pre-approval command. isMine
// selects the local role: payer when it claims the approval's address,
// biller when it claims the biller address.
func DecodeFundsPullPayload(cid string, payload ir.IRObject, isMine func(address string) bool) (*FundsPullPreApprovalCommand, error) {
	d := &decoder{}
	r := commandPayload(d, payload, CommandTypeFundsPullPreApproval, "funds_pull_pre_approval")
	a := r.object("funds_pull_pre_approval", true,
		"address", "biller_address", "funds_pull_pre_approval_id", "scope", "description", "status")

	var approval FundsPullPreApproval
	if a != nil {
		approval = FundsPullPreApproval{
			Address:                a.str("address", true),
			BillerAddress:          a.str("biller_address", true),
			FundsPullPreApprovalID: a.str("funds_pull_pre_approval_id", true),
			Scope: d.scope(a.object("scope", true,
				"type", "expiration_timestamp", "max_cumulative_amount", "max_transaction_amount")),
			Description: a.str("description", false),
			Status: FundsPullStatus(a.enum("status", true,
				string(FundsPullPending), string(FundsPullValid), string(FundsPullRejected), string(FundsPullClosed))),
		}
	}
	if d.err != nil {
		return nil, d.err
	}

	switch {
	case isMine(approval.Address):
		return NewFundsPullPreApprovalCommand(cid, RolePayer, true, approval), nil
	case isMine(approval.BillerAddress):
		return NewFundsPullPreApprovalCommand(cid, RoleBiller, true, approval), nil
	default:
		return nil, FieldError(TypeCommandError, CodeUnknownAddress, "funds_pull_pre_approval.address",
			"neither address nor biller_address belongs to this VASP")
	}
}

func (d *decoder) scope(r *reader) FundsPullScope {
	if r == nil {
		return FundsPullScope{}
	}
	s := FundsPullScope{
		Type:                ScopeType(r.enum("type", true, string(ScopeConsent), string(ScopeSaveSubAccount))),
		ExpirationTimestamp: r.int("expiration_timestamp", true),
	}
	if m := r.object("max_cumulative_amount", false, "unit", "value", "max_amount"); m != nil {
		s.MaxCumulativeAmount = &CumulativeAmount{
			Unit:      m.enum("unit", true, "day", "week", "month", "year"),
			Value:     m.int("value", true),
			MaxAmount: d.currencyAmount(m.object("max_amount", true, "amount", "currency")),
		}
	}
	if m := r.object("max_transaction_amount", false, "amount", "currency"); m != nil {
		amount := d.currencyAmount(m)
		s.MaxTransactionAmount = &amount
	}
	return s
}

func (d *decoder) currencyAmount(r *reader) CurrencyAmount {
	if r == nil {
		return CurrencyAmount{}
	}
	return CurrencyAmount{Amount: r.uint("amount", true), Currency: r.str("currency", true)}
}
