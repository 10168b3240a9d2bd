// Package offchain implements the off-chain compliance protocol between two
// VASPs: the shared payment record, its state catalogue and follow-up
// actions, command validation, travel-rule signing and the command
// request/response envelopes.
//
// Commands are immutable values. A new revision of a payment is derived from
// the previous one with PaymentCommand.Revise and must pass Validate against
// the prior revision before it is persisted or sent.
//
// Every failure crossing the package boundary is an *Error carrying a
// machine-readable type, code and (when applicable) field path.
package offchain
