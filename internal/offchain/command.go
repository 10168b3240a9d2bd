package offchain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/offchain/internal/ir"
)

// Command is implemented by PaymentCommand, ReferenceIDCommand and
// FundsPullPreApprovalCommand. The set is closed; consumers switch on the
// concrete type.
type Command interface {
	CID() string
	CommandType() string
	ReferenceID() string
	IsInbound() bool
	MyAddress() string
	OpponentAddress() string
	Payload() ir.IRObject
	RequestObject() *CommandRequestObject

	command()
}

func (*PaymentCommand) command()              {}
func (*ReferenceIDCommand) command()          {}
func (*FundsPullPreApprovalCommand) command() {}

// Object type discriminators.
const (
	objectTypeRequest  = "CommandRequestObject"
	objectTypeResponse = "CommandResponseObject"
)

// CommandTypes lists the accepted command_type values.
var CommandTypes = []string{
	CommandTypePayment,
	CommandTypeReferenceID,
	CommandTypeFundsPullPreApproval,
}

// CommandRequestObject is the request envelope.
type CommandRequestObject struct {
	CID         string
	CommandType string
	Command     ir.IRObject
}

// ToIR encodes the request in its wire shape.
func (r *CommandRequestObject) ToIR() ir.IRObject {
	return ir.IRObject{
		fieldObjectType: ir.IRString(objectTypeRequest),
		"cid":           ir.IRString(r.CID),
		"command_type":  ir.IRString(r.CommandType),
		"command":       r.Command,
	}
}

// MarshalJSON implements json.Marshaler. Keys are sorted and nulls omitted.
func (r *CommandRequestObject) MarshalJSON() ([]byte, error) {
	return r.ToIR().MarshalJSON()
}

// DecodeRequest parses a request envelope payload.
//
// All failures are protocol errors: invalid_json for malformed JSON, field
// codes for a malformed envelope, unknown_command_type for an unsupported
// command. The command payload itself is validated later, by the decoder
// for its type.
func DecodeRequest(data []byte) (*CommandRequestObject, error) {
	obj, err := parseObject(data)
	if err != nil {
		return nil, err
	}

	d := &decoder{}
	r := d.newReader(obj, "", fieldObjectType, "cid", "command_type", "command")
	r.objectType(objectTypeRequest)
	req := &CommandRequestObject{
		CID:         r.uuid("cid", true),
		CommandType: r.str("command_type", true),
	}
	if cmd := r.object("command", true, anyKeys(obj["command"])...); cmd != nil {
		req.Command = cmd.obj
	}
	if d.err != nil {
		return nil, withType(d.err, TypeProtocolError)
	}

	if !isCommandType(req.CommandType) {
		return nil, FieldError(TypeProtocolError, CodeUnknownCommandType, "command_type",
			"unknown command type %q", req.CommandType)
	}
	return req, nil
}

// RequestCID extracts the cid from a request payload that may fail full
// decoding, so failure responses can echo it.
func RequestCID(data []byte) string {
	var head struct {
		CID string `json:"cid"`
	}
	if json.Unmarshal(data, &head) != nil || !IsUUID(head.CID) {
		return ""
	}
	return head.CID
}

func isCommandType(t string) bool {
	for _, ct := range CommandTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// anyKeys lists the keys of v when it is an object, so a reader accepts
// them all. Command payloads are checked by their own decoders.
func anyKeys(v ir.IRValue) []string {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil
	}
	return obj.SortedKeys()
}

// parseObject parses a JSON object, mapping failures to invalid_json.
func parseObject(data []byte) (ir.IRObject, error) {
	obj, err := ir.ParseObject(data)
	if err == nil {
		return obj, nil
	}
	var de *ir.DecodeError
	if errors.As(err, &de) {
		return nil, FieldError(TypeProtocolError, CodeInvalidFieldValue, de.Path, "%s", de.Reason)
	}
	return nil, ProtocolError(CodeInvalidJSON, "%v", err)
}

// ResponseStatus is the outcome of a request.
type ResponseStatus string

const (
	StatusSuccess ResponseStatus = "success"
	StatusFailure ResponseStatus = "failure"
)

// ErrorObject is the wire form of an *Error.
type ErrorObject struct {
	Type    ErrorType
	Code    ErrorCode
	Field   string
	Message string
}

// Err converts the wire error back into an *Error.
func (o *ErrorObject) Err() *Error {
	return &Error{Type: o.Type, Code: o.Code, Field: o.Field, Message: o.Message}
}

func (o *ErrorObject) toIR() ir.IRObject {
	b := builder{
		"type": ir.IRString(o.Type),
		"code": ir.IRString(o.Code),
	}
	b.str("field", o.Field)
	b.str("message", o.Message)
	return ir.IRObject(b)
}

// CommandResponseObject is the response envelope.
type CommandResponseObject struct {
	Status ResponseStatus
	CID    string
	Error  *ErrorObject
	Result ir.IRObject
}

// SuccessResponse builds a success response.
func SuccessResponse(cid string, result ir.IRObject) *CommandResponseObject {
	return &CommandResponseObject{Status: StatusSuccess, CID: cid, Result: result}
}

// FailureResponse builds a failure response from err. Errors outside the
// taxonomy are reported as a protocol error without details.
func FailureResponse(cid string, err error) *CommandResponseObject {
	e, ok := AsError(err)
	if !ok {
		e = ProtocolError(CodeInvalidObject, "internal error")
	}
	return &CommandResponseObject{Status: StatusFailure, CID: cid, Error: e.Object()}
}

// ToIR encodes the response in its wire shape.
func (r *CommandResponseObject) ToIR() ir.IRObject {
	b := builder{
		fieldObjectType: ir.IRString(objectTypeResponse),
		"status":        ir.IRString(r.Status),
	}
	b.str("cid", r.CID)
	if r.Error != nil {
		b["error"] = r.Error.toIR()
	}
	b.object("result", r.Result)
	return ir.IRObject(b)
}

// MarshalJSON implements json.Marshaler. Keys are sorted and nulls omitted.
func (r *CommandResponseObject) MarshalJSON() ([]byte, error) {
	return r.ToIR().MarshalJSON()
}

// Err returns the carried error for failure responses, nil otherwise.
func (r *CommandResponseObject) Err() error {
	if r.Status == StatusSuccess {
		return nil
	}
	if r.Error == nil {
		return ProtocolError(CodeInvalidObject, "failure response without error")
	}
	return r.Error.Err()
}

// DecodeResponse parses a response envelope payload.
func DecodeResponse(data []byte) (*CommandResponseObject, error) {
	obj, err := parseObject(data)
	if err != nil {
		return nil, err
	}

	d := &decoder{}
	r := d.newReader(obj, "", fieldObjectType, "status", "cid", "error", "result")
	r.objectType(objectTypeResponse)
	resp := &CommandResponseObject{
		Status: ResponseStatus(r.enum("status", true, string(StatusSuccess), string(StatusFailure))),
		CID:    r.uuid("cid", false),
	}
	if e := r.object("error", false, "type", "code", "field", "message"); e != nil {
		resp.Error = &ErrorObject{
			Type:    ErrorType(e.enum("type", true, string(TypeProtocolError), string(TypeCommandError))),
			Code:    ErrorCode(e.str("code", true)),
			Field:   e.str("field", false),
			Message: e.str("message", false),
		}
	}
	if res := r.object("result", false, anyKeys(obj["result"])...); res != nil {
		resp.Result = res.obj
	}
	if d.err != nil {
		return nil, withType(d.err, TypeProtocolError)
	}
	if resp.Status == StatusFailure && resp.Error == nil {
		return nil, FieldError(TypeProtocolError, CodeMissingField, "error", "failure response requires error")
	}
	return resp, nil
}

// commandPayload opens a command payload of the given type. Errors are
// command errors with paths relative to the payload.
func commandPayload(d *decoder, payload ir.IRObject, objectType string, known ...string) *reader {
	r := d.newReader(payload, "", append([]string{fieldObjectType}, known...)...)
	r.objectType(objectType)
	return r
}

// DecodePaymentPayload decodes the payload of a PaymentCommand request.
func DecodePaymentPayload(payload ir.IRObject) (Payment, error) {
	d := &decoder{}
	r := commandPayload(d, payload, CommandTypePayment, "payment")
	p := r.object("payment", true, paymentFields...)
	if d.err != nil {
		return Payment{}, d.err
	}
	payment := d.payment(p)
	if d.err != nil {
		return Payment{}, d.err
	}
	return payment, nil
}

// String renders an error object for logs.
func (o *ErrorObject) String() string {
	return fmt.Sprintf("%s/%s field=%q %s", o.Type, o.Code, o.Field, o.Message)
}
