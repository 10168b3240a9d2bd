package offchain

import (
	"errors"
	"fmt"
)

// ErrorType is the top-level kind of an off-chain error.
type ErrorType string

const (
	// TypeProtocolError covers transport and framing failures.
	TypeProtocolError ErrorType = "protocol_error"
	// TypeCommandError covers validation failures of a decoded command.
	TypeCommandError ErrorType = "command_error"
)

// ErrorCode identifies a specific failure.
type ErrorCode string

// Protocol error codes.
const (
	CodeInvalidJWS          ErrorCode = "invalid_jws"
	CodeInvalidJWSSignature ErrorCode = "invalid_jws_signature"
	CodeInvalidHeader       ErrorCode = "invalid_header"
	CodeInvalidJSON         ErrorCode = "invalid_json"
	CodeMissingHTTPHeader   ErrorCode = "missing_http_header"
	CodeInvalidHTTPHeader   ErrorCode = "invalid_http_header"
	CodeUnknownCommandType  ErrorCode = "unknown_command_type"
	CodeConflict            ErrorCode = "conflict"
)

// Command error codes.
const (
	CodeInvalidCommandProducer        ErrorCode = "invalid_command_producer"
	CodeInvalidTransition             ErrorCode = "invalid_transition"
	CodeInvalidInitialOrPriorNotFound ErrorCode = "invalid_initial_or_prior_not_found"
	CodeInvalidOverwrite              ErrorCode = "invalid_overwrite"
	CodeInvalidRecipientSignature     ErrorCode = "invalid_recipient_signature"
	CodeNoKycNeeded                   ErrorCode = "no_kyc_needed"
	CodeUnknownAddress                ErrorCode = "unknown_address"
	CodeDuplicateReferenceID          ErrorCode = "duplicate_reference_id"
)

// Field error codes, used with either error type.
const (
	CodeMissingField      ErrorCode = "missing_field"
	CodeInvalidFieldValue ErrorCode = "invalid_field_value"
	CodeUnknownField      ErrorCode = "unknown_field"
	CodeInvalidObject     ErrorCode = "invalid_object"
)

// Error is a typed off-chain failure. Field is the dotted path of the
// offending field, relative to the object being decoded or validated.
type Error struct {
	Type    ErrorType
	Code    ErrorCode
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s (field=%s)", e.Type, e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s: %s", e.Type, e.Code, e.Message)
}

// Object converts the error into its wire representation.
func (e *Error) Object() *ErrorObject {
	return &ErrorObject{
		Type:    e.Type,
		Code:    e.Code,
		Field:   e.Field,
		Message: e.Message,
	}
}

// ProtocolError creates a protocol_error.
func ProtocolError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Type: TypeProtocolError, Code: code, Message: fmt.Sprintf(format, args...)}
}

// CommandError creates a command_error.
func CommandError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Type: TypeCommandError, Code: code, Message: fmt.Sprintf(format, args...)}
}

// FieldError creates a field-qualified error of type t.
func FieldError(t ErrorType, code ErrorCode, field, format string, args ...any) *Error {
	return &Error{Type: t, Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCommandError reports whether err is a command_error.
// Uses errors.As to handle wrapped errors.
func IsCommandError(err error) bool {
	e, ok := AsError(err)
	return ok && e.Type == TypeCommandError
}

// IsProtocolError reports whether err is a protocol_error.
func IsProtocolError(err error) bool {
	e, ok := AsError(err)
	return ok && e.Type == TypeProtocolError
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// withType re-labels err as type t, leaving non-offchain errors untouched.
// Decoders report field errors untyped; the caller decides whether the
// object was part of the envelope or of the command payload.
func withType(err error, t ErrorType) error {
	e, ok := AsError(err)
	if !ok {
		return err
	}
	out := *e
	out.Type = t
	return &out
}
