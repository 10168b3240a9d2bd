package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const revisionColumns = `seq, object_id, cid, command_type, role, inbound, state, terminal, payload, digest`

// Latest returns the latest revision of objectID. ok is false when the
// object is unknown.
func (s *Store) Latest(ctx context.Context, objectID string) (rev Revision, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions
		WHERE object_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, objectID)

	rev, err = scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, false, nil
	}
	if err != nil {
		return Revision{}, false, fmt.Errorf("latest revision %s: %w", objectID, err)
	}
	return rev, true, nil
}

// History returns every revision of objectID, oldest first.
// Returns an empty slice (not nil) for unknown objects.
func (s *Store) History(ctx context.Context, objectID string) ([]Revision, error) {
	return s.queryRevisions(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions
		WHERE object_id = ?
		ORDER BY seq ASC
	`, objectID)
}

// Pending returns the latest revision of every object whose latest state
// is not terminal, ordered by seq.
func (s *Store) Pending(ctx context.Context) ([]Revision, error) {
	return s.queryRevisions(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions r
		WHERE r.terminal = 0
		  AND r.seq = (SELECT MAX(seq) FROM revisions WHERE object_id = r.object_id)
		ORDER BY r.seq ASC
	`)
}

// Unhandled returns the latest revision of every object whose follow-up
// has not been marked handled, ordered by seq.
func (s *Store) Unhandled(ctx context.Context) ([]Revision, error) {
	return s.queryRevisions(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions r
		WHERE r.seq = (SELECT MAX(seq) FROM revisions WHERE object_id = r.object_id)
		  AND NOT EXISTS (SELECT 1 FROM handled h WHERE h.cid = r.cid)
		ORDER BY r.seq ASC
	`)
}

// Response returns the cached response for cid.
func (s *Store) Response(ctx context.Context, cid string) (r CachedResponse, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT cid, request_digest, body, http_status, seq
		FROM responses
		WHERE cid = ?
	`, cid).Scan(&r.CID, &r.RequestDigest, &r.Body, &r.HTTPStatus, &r.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedResponse{}, false, nil
	}
	if err != nil {
		return CachedResponse{}, false, fmt.Errorf("cached response %s: %w", cid, err)
	}
	return r, true, nil
}

// ResponseCount returns the number of cached responses.
func (s *Store) ResponseCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return n, nil
}

func (s *Store) queryRevisions(ctx context.Context, query string, args ...any) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	revisions := []Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return revisions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRevision(row scanner) (Revision, error) {
	var (
		rev               Revision
		inbound, terminal int
		payload           string
	)
	err := row.Scan(
		&rev.Seq,
		&rev.ObjectID,
		&rev.CID,
		&rev.CommandType,
		&rev.Role,
		&inbound,
		&rev.State,
		&terminal,
		&payload,
		&rev.Digest,
	)
	if err != nil {
		return Revision{}, err
	}
	rev.Inbound = inbound == 1
	rev.Terminal = terminal == 1
	if rev.Payload, err = unmarshalPayload(payload); err != nil {
		return Revision{}, fmt.Errorf("revision %s: %w", rev.CID, err)
	}
	return rev, nil
}
