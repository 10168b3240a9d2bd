package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/offchain/internal/ir"
)

// Revision is one accepted revision of a shared object.
type Revision struct {
	Seq         int64
	ObjectID    string
	CID         string
	CommandType string
	// Role is the local VASP's side: sender/receiver or payer/biller.
	Role     string
	Inbound  bool
	State    string
	Terminal bool
	Payload  ir.IRObject
	Digest   string
}

// SaveRevision appends rev as the new latest revision of rev.ObjectID.
//
// priorCID is the cid of the revision rev was validated against, or "" for
// the first revision. If the stored latest differs, nothing is written and
// ErrConflict is returned. A cid that is already stored is also a conflict.
// Seq and Digest are assigned here and returned.
func (s *Store) SaveRevision(ctx context.Context, rev Revision, priorCID string) (Revision, error) {
	payload, err := marshalPayload(rev.Payload)
	if err != nil {
		return Revision{}, fmt.Errorf("save revision: %w", err)
	}
	digest, err := ir.RevisionDigest(rev.ObjectID, rev.Payload)
	if err != nil {
		return Revision{}, fmt.Errorf("save revision: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Revision{}, fmt.Errorf("save revision: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var latest string
	err = tx.QueryRowContext(ctx, `
		SELECT cid FROM revisions
		WHERE object_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, rev.ObjectID).Scan(&latest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Revision{}, fmt.Errorf("save revision: read latest: %w", err)
	}
	if latest != priorCID {
		return Revision{}, fmt.Errorf("%w: object %s latest is %q, expected %q", ErrConflict, rev.ObjectID, latest, priorCID)
	}

	rev.Seq = s.clock.Next()
	rev.Digest = digest
	result, err := tx.ExecContext(ctx, `
		INSERT INTO revisions
		(seq, object_id, cid, command_type, role, inbound, state, terminal, payload, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cid) DO NOTHING
	`,
		rev.Seq,
		rev.ObjectID,
		rev.CID,
		rev.CommandType,
		rev.Role,
		boolToInt(rev.Inbound),
		rev.State,
		boolToInt(rev.Terminal),
		payload,
		rev.Digest,
	)
	if err != nil {
		return Revision{}, fmt.Errorf("save revision: insert: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return Revision{}, fmt.Errorf("save revision: rows affected: %w", err)
	} else if n == 0 {
		return Revision{}, fmt.Errorf("%w: cid %s already stored", ErrConflict, rev.CID)
	}

	if err := tx.Commit(); err != nil {
		return Revision{}, fmt.Errorf("save revision: commit: %w", err)
	}
	return rev, nil
}

// CachedResponse is a response already produced for an inbound cid.
type CachedResponse struct {
	CID           string
	RequestDigest string
	Body          []byte
	HTTPStatus    int
	Seq           int64
}

// SaveResponse caches a response. The first response for a cid wins; later
// saves for the same cid are ignored and report inserted=false.
//
// After inserting, every response older than the newest ResponseCacheSize
// is deleted.
func (s *Store) SaveResponse(ctx context.Context, r CachedResponse) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("save response: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO responses (cid, request_digest, body, http_status, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cid) DO NOTHING
	`, r.CID, r.RequestDigest, r.Body, r.HTTPStatus, s.clock.Next())
	if err != nil {
		return false, fmt.Errorf("save response: insert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save response: rows affected: %w", err)
	}

	if n > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM responses
			WHERE seq <= (
				SELECT seq FROM responses
				ORDER BY seq DESC
				LIMIT 1 OFFSET ?
			)
		`, s.cacheSize)
		if err != nil {
			return false, fmt.Errorf("save response: prune: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("save response: commit: %w", err)
	}
	return n > 0, nil
}

// ReserveReferenceID records referenceID as taken by senderAddress.
// It reports false when the id was already reserved or is already used by
// a stored revision.
func (s *Store) ReserveReferenceID(ctx context.Context, referenceID, senderAddress string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("reserve reference id: begin tx: %w", err)
	}
	defer tx.Rollback()

	var used int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revisions WHERE object_id = ?`, referenceID,
	).Scan(&used); err != nil {
		return false, fmt.Errorf("reserve reference id: check revisions: %w", err)
	}
	if used > 0 {
		return false, nil
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO reference_ids (reference_id, sender_address, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(reference_id) DO NOTHING
	`, referenceID, senderAddress, s.clock.Next())
	if err != nil {
		return false, fmt.Errorf("reserve reference id: insert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve reference id: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("reserve reference id: commit: %w", err)
	}
	return n > 0, nil
}

// MarkHandled records that the follow-up of revision cid is done.
// Marking twice is a no-op.
func (s *Store) MarkHandled(ctx context.Context, cid string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handled (cid, seq) VALUES (?, ?)
		ON CONFLICT(cid) DO NOTHING
	`, cid, s.clock.Next())
	if err != nil {
		return fmt.Errorf("mark handled %s: %w", cid, err)
	}
	return nil
}
