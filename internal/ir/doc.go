// Package ir provides the JSON value representation shared by the off-chain
// protocol packages.
//
// Every wire object is decoded into an IRObject before it is turned into a
// typed record, which lets the codec report the exact dotted path of a bad
// field. ir imports nothing internal.
//
// Key design constraints:
//   - No float types. Amounts and timestamps are int64.
//   - JSON null decodes to IRNull and is treated as "field absent".
//   - Object keys are emitted in RFC 8785 order so encodings are stable.
package ir
