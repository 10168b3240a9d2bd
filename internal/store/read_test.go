package store

import (
	"context"
	"testing"

	"github.com/roach88/offchain/internal/ir"
)

func TestLatest(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()

	if _, ok, err := s.Latest(ctx, "missing"); err != nil || ok {
		t.Fatalf("Latest(missing) = %v, %v; want not found", ok, err)
	}

	if _, err := s.SaveRevision(ctx, testRevision("obj-1", "cid-1", "S_INIT"), ""); err != nil {
		t.Fatal(err)
	}
	rev := testRevision("obj-1", "cid-2", "R_SEND")
	rev.Inbound = true
	rev.Role = "receiver"
	saved, err := s.SaveRevision(ctx, rev, "cid-1")
	if err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Latest(ctx, "obj-1")
	if err != nil || !ok {
		t.Fatalf("Latest() = %v, %v", ok, err)
	}
	if got.CID != "cid-2" || got.State != "R_SEND" || !got.Inbound || got.Role != "receiver" {
		t.Errorf("Latest() = %+v", got)
	}
	if got.Seq != saved.Seq || got.Digest != saved.Digest {
		t.Errorf("Latest() seq/digest = %d/%s, want %d/%s", got.Seq, got.Digest, saved.Seq, saved.Digest)
	}
	if !ir.Equal(got.Payload, rev.Payload) {
		t.Errorf("Latest() payload = %v, want %v", got.Payload, rev.Payload)
	}
}

func TestHistory(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()

	empty, err := s.History(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("History(missing) = %v, want empty slice", empty)
	}

	prior := ""
	for i, state := range []string{"S_INIT", "R_SEND", "READY"} {
		rev := testRevision("obj-1", "cid-"+state, state)
		if _, err := s.SaveRevision(ctx, rev, prior); err != nil {
			t.Fatalf("SaveRevision(%d) failed: %v", i, err)
		}
		prior = rev.CID
	}

	history, err := s.History(ctx, "obj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("History() len = %d, want 3", len(history))
	}
	for i, want := range []string{"S_INIT", "R_SEND", "READY"} {
		if history[i].State != want {
			t.Errorf("History()[%d].State = %s, want %s", i, history[i].State, want)
		}
	}
}

func TestPending(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()

	if _, err := s.SaveRevision(ctx, testRevision("a", "a-1", "S_INIT"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveRevision(ctx, testRevision("b", "b-1", "S_INIT"), ""); err != nil {
		t.Fatal(err)
	}
	done := testRevision("b", "b-2", "READY")
	done.Terminal = true
	if _, err := s.SaveRevision(ctx, done, "b-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveRevision(ctx, testRevision("a", "a-2", "R_SEND"), "a-1"); err != nil {
		t.Fatal(err)
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("Pending() len = %d, want 1", len(pending))
	}
	if pending[0].CID != "a-2" {
		t.Errorf("Pending()[0].CID = %s, want a-2", pending[0].CID)
	}
}

func TestUnhandled(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()

	if _, err := s.SaveRevision(ctx, testRevision("a", "a-1", "S_INIT"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveRevision(ctx, testRevision("b", "b-1", "READY"), ""); err != nil {
		t.Fatal(err)
	}

	unhandled, err := s.Unhandled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unhandled) != 2 {
		t.Fatalf("Unhandled() len = %d, want 2", len(unhandled))
	}

	if err := s.MarkHandled(ctx, "b-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkHandled(ctx, "b-1"); err != nil {
		t.Fatalf("second MarkHandled() failed: %v", err)
	}
	unhandled, err = s.Unhandled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unhandled) != 1 || unhandled[0].CID != "a-1" {
		t.Errorf("Unhandled() = %v, want only a-1", unhandled)
	}

	// A new revision of a handled object is unhandled again.
	if _, err := s.SaveRevision(ctx, testRevision("b", "b-2", "READY"), "b-1"); err != nil {
		t.Fatal(err)
	}
	unhandled, err = s.Unhandled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unhandled) != 2 {
		t.Errorf("Unhandled() len = %d after new revision, want 2", len(unhandled))
	}
}
