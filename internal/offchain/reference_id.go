package offchain

import (
	"github.com/roach88/offchain/internal/ir"
)

// CommandTypeReferenceID is the command_type of reference id reservations.
const CommandTypeReferenceID = "ReferenceIDCommand"

const objectTypeReferenceIDResult = "ReferenceIDCommandResponse"

// ReferenceIDCommand asks the receiving VASP to reserve a reference id for
// a payment the sender is about to start.
type ReferenceIDCommand struct {
	cid           string
	inbound       bool
	sender        string
	senderAddress string
	receiver      string
	referenceID   string
}

// NewReferenceIDCommand creates a reservation request. sender is the
// sender's user-facing name or id; the addresses are account identifiers.
func NewReferenceIDCommand(cid string, inbound bool, sender, senderAddress, receiver, referenceID string) *ReferenceIDCommand {
	return &ReferenceIDCommand{
		cid:           cid,
		inbound:       inbound,
		sender:        sender,
		senderAddress: senderAddress,
		receiver:      receiver,
		referenceID:   referenceID,
	}
}

// CID returns the command id.
func (c *ReferenceIDCommand) CID() string { return c.cid }

// CommandType returns CommandTypeReferenceID.
func (c *ReferenceIDCommand) CommandType() string { return CommandTypeReferenceID }

// ReferenceID returns the reference id being reserved.
func (c *ReferenceIDCommand) ReferenceID() string { return c.referenceID }

// IsInbound reports whether the counterparty sent the command.
func (c *ReferenceIDCommand) IsInbound() bool { return c.inbound }

// Sender returns the sender's name.
func (c *ReferenceIDCommand) Sender() string { return c.sender }

// SenderAddress returns the sender's account identifier.
func (c *ReferenceIDCommand) SenderAddress() string { return c.senderAddress }

// Receiver returns the receiver's account identifier.
func (c *ReferenceIDCommand) Receiver() string { return c.receiver }

// MyAddress returns the local account: the receiver for inbound commands.
func (c *ReferenceIDCommand) MyAddress() string {
	if c.inbound {
		return c.receiver
	}
	return c.senderAddress
}

// OpponentAddress returns the counterparty's account.
func (c *ReferenceIDCommand) OpponentAddress() string {
	if c.inbound {
		return c.senderAddress
	}
	return c.receiver
}

// Payload implements Command.
func (c *ReferenceIDCommand) Payload() ir.IRObject {
	return ir.IRObject{
		fieldObjectType:  ir.IRString(CommandTypeReferenceID),
		"sender":         ir.IRString(c.sender),
		"sender_address": ir.IRString(c.senderAddress),
		"receiver":       ir.IRString(c.receiver),
		"reference_id":   ir.IRString(c.referenceID),
	}
}

// RequestObject implements Command.
func (c *ReferenceIDCommand) RequestObject() *CommandRequestObject {
	return &CommandRequestObject{CID: c.cid, CommandType: CommandTypeReferenceID, Command: c.Payload()}
}

// Result returns the success result the receiver answers with.
func (c *ReferenceIDCommand) Result() ir.IRObject {
	return ReferenceIDResult(c.receiver)
}

// ReferenceIDResult builds the result object of a reservation.
func ReferenceIDResult(receiverAddress string) ir.IRObject {
	return ir.IRObject{
		fieldObjectType:    ir.IRString(objectTypeReferenceIDResult),
		"receiver_address": ir.IRString(receiverAddress),
	}
}

// DecodeReferenceIDPayload decodes an inbound reservation request.
func DecodeReferenceIDPayload(cid string, payload ir.IRObject) (*ReferenceIDCommand, error) {
	d := &decoder{}
	r := commandPayload(d, payload, CommandTypeReferenceID, "sender", "sender_address", "receiver", "reference_id")
	c := NewReferenceIDCommand(cid, true,
		r.str("sender", true),
		r.str("sender_address", true),
		r.str("receiver", true),
		r.uuid("reference_id", true),
	)
	if d.err != nil {
		return nil, d.err
	}
	return c, nil
}
