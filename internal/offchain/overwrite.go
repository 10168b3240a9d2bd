package offchain

import (
	"github.com/roach88/offchain/internal/ir"
)

type mutability int

const (
	mutable mutability = iota
	writeOnce
	immutable
)

// fieldSpec tags one member of a wire object. Mutable members with
// children are descended into; tagged members are compared whole.
type fieldSpec struct {
	name     string
	tag      mutability
	children []fieldSpec
}

var actorSchema = []fieldSpec{
	{name: "address", tag: writeOnce},
	{name: "kyc_data", tag: writeOnce},
	{name: "additional_kyc_data", tag: writeOnce},
}

var paymentSchema = []fieldSpec{
	{name: "reference_id", tag: immutable},
	{name: "original_payment_reference_id", tag: immutable},
	{name: "action", tag: writeOnce},
	{name: "recipient_signature", tag: writeOnce},
	{name: "description", tag: writeOnce},
	{name: "sender", children: actorSchema},
	{name: "receiver", children: actorSchema},
}

// checkOverwrites compares two revisions of an object field by field.
// Immutable members must be equal; write-once members may go from absent
// to present but never change after that.
func checkOverwrites(path string, schema []fieldSpec, prior, next ir.IRObject) error {
	for _, f := range schema {
		field := joinPath(path, f.name)
		p, n := prior[f.name], next[f.name]

		switch f.tag {
		case immutable:
			if !ir.Equal(p, n) {
				return FieldError(TypeCommandError, CodeInvalidOverwrite, field, "immutable field changed")
			}
		case writeOnce:
			if !ir.IsAbsent(p) && !ir.Equal(p, n) {
				return FieldError(TypeCommandError, CodeInvalidOverwrite, field, "write-once field changed")
			}
		default:
			po, pok := p.(ir.IRObject)
			no, nok := n.(ir.IRObject)
			if len(f.children) > 0 && pok && nok {
				if err := checkOverwrites(field, f.children, po, no); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
