package offchain

import (
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/offchain/internal/ir"
)

// decoder carries the first error of one decode pass. Every reader created
// from it stops doing work once an error is recorded, so a decode function
// can read all of its fields unconditionally and check the error once.
type decoder struct {
	err error
}

func (d *decoder) fail(code ErrorCode, field, format string, args ...any) {
	if d.err == nil {
		d.err = FieldError(TypeCommandError, code, field, format, args...)
	}
}

// reader reads the members of one JSON object. A nil *reader stands for an
// absent optional object; all methods return zero values on it.
type reader struct {
	d    *decoder
	obj  ir.IRObject
	path string
}

// newReader checks that v is an object without unknown members. A member
// set to null must still be known; null only stands in for an absent
// optional member.
func (d *decoder) newReader(v ir.IRValue, path string, known ...string) *reader {
	obj, ok := v.(ir.IRObject)
	if !ok {
		d.fail(CodeInvalidObject, path, "expected object, got %s", ir.TypeName(v))
		return &reader{d: d, path: path}
	}
	for _, k := range obj.SortedKeys() {
		if !slices.Contains(known, k) {
			d.fail(CodeUnknownField, joinPath(path, k), "unknown field")
			break
		}
	}
	return &reader{d: d, obj: obj, path: path}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func (r *reader) value(key string, required bool) (ir.IRValue, bool) {
	if r == nil || r.d.err != nil {
		return nil, false
	}
	v, ok := r.obj[key]
	if !ok || ir.IsAbsent(v) {
		if required {
			r.d.fail(CodeMissingField, joinPath(r.path, key), "field is required")
		}
		return nil, false
	}
	return v, true
}

func (r *reader) str(key string, required bool) string {
	v, ok := r.value(key, required)
	if !ok {
		return ""
	}
	s, isStr := v.(ir.IRString)
	if !isStr {
		r.d.fail(CodeInvalidFieldValue, joinPath(r.path, key), "expected string, got %s", ir.TypeName(v))
		return ""
	}
	return string(s)
}

// enum reads a string restricted to allowed.
func (r *reader) enum(key string, required bool, allowed ...string) string {
	s := r.str(key, required)
	if s != "" && !slices.Contains(allowed, s) {
		r.d.fail(CodeInvalidFieldValue, joinPath(r.path, key), "%q is not one of %v", s, allowed)
		return ""
	}
	return s
}

// uuid reads a string in canonical hyphenated UUID form.
func (r *reader) uuid(key string, required bool) string {
	s := r.str(key, required)
	if s != "" && !IsUUID(s) {
		r.d.fail(CodeInvalidFieldValue, joinPath(r.path, key), "%q is not a UUID", s)
		return ""
	}
	return s
}

func (r *reader) int(key string, required bool) int64 {
	v, ok := r.value(key, required)
	if !ok {
		return 0
	}
	n, isInt := v.(ir.IRInt)
	if !isInt {
		r.d.fail(CodeInvalidFieldValue, joinPath(r.path, key), "expected integer, got %s", ir.TypeName(v))
		return 0
	}
	return int64(n)
}

func (r *reader) uint(key string, required bool) uint64 {
	n := r.int(key, required)
	if n < 0 {
		r.d.fail(CodeInvalidFieldValue, joinPath(r.path, key), "must not be negative")
		return 0
	}
	return uint64(n)
}

func (r *reader) strings(key string) []string {
	v, ok := r.value(key, false)
	if !ok {
		return nil
	}
	arr, isArr := v.(ir.IRArray)
	if !isArr {
		r.d.fail(CodeInvalidFieldValue, joinPath(r.path, key), "expected array, got %s", ir.TypeName(v))
		return nil
	}
	out := make([]string, len(arr))
	for i, elem := range arr {
		s, isStr := elem.(ir.IRString)
		if !isStr {
			r.d.fail(CodeInvalidFieldValue, joinPath(r.path, key), "element %d: expected string, got %s", i, ir.TypeName(elem))
			return nil
		}
		out[i] = string(s)
	}
	return out
}

// object returns a reader for a nested object, or nil when it is absent.
func (r *reader) object(key string, required bool, known ...string) *reader {
	v, ok := r.value(key, required)
	if !ok {
		return nil
	}
	return r.d.newReader(v, joinPath(r.path, key), known...)
}

// objectType checks the optional "_ObjectType" discriminator.
func (r *reader) objectType(want string) {
	r.enum(fieldObjectType, false, want)
}

const fieldObjectType = "_ObjectType"

// IsUUID reports whether s is a UUID in canonical 36-character form.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// builder assembles an ir.IRObject, skipping empty optionals.
type builder ir.IRObject

func (b builder) str(key, v string) {
	if v != "" {
		b[key] = ir.IRString(v)
	}
}

func (b builder) strings(key string, v []string) {
	if v == nil {
		return
	}
	arr := make(ir.IRArray, len(v))
	for i, s := range v {
		arr[i] = ir.IRString(s)
	}
	b[key] = arr
}

func (b builder) object(key string, v ir.IRObject) {
	if v != nil {
		b[key] = v
	}
}
