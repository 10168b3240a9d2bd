// Package store provides SQLite-backed storage for off-chain protocol state.
//
// The store keeps three tables:
//   - revisions: every accepted revision of a shared object (payment or
//     pre-approval), append-only, keyed by object id and logical seq
//   - responses: the idempotency cache of responses already produced for an
//     inbound cid
//   - reference_ids: reference ids reserved by inbound ReferenceIDCommands
//
// # Patterns
//
// Latest-revision compare-and-set:
//   - SaveRevision names the cid of the revision it was validated against
//   - the insert only happens if that cid is still the latest for the object
//   - a mismatch is ErrConflict; the caller revalidates against the new latest
//
// Logical time:
//   - all ordering uses seq INTEGER from a monotonic Clock, never timestamps
//   - the clock resumes from the highest stored seq on Open
//
// Bounded idempotency cache:
//   - responses beyond the newest Options.ResponseCacheSize rows, by seq, are
//     pruned on every insert
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - single connection: SQLite has one writer
//
// Payloads are stored as RFC 8785 canonical JSON via internal/ir.
package store
