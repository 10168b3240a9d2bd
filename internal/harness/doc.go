// Package harness runs scripted payment exchanges between two VASPs and
// records what each side accepted or rejected.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: happy_path
//	description: "Both sides exchange KYC data and agree to settle"
//	payment:
//	  amount: 10000000
//	  currency: XUS
//	steps:
//	  - by: sender
//	    init: true
//	    kyc: { given_name: Alice, surname: Sender }
//	  - by: receiver
//	    status: ready_for_settlement
//	    kyc: { given_name: Bob, surname: Receiver }
//	    sign: true
//	    expect: { state: R_SEND }
//	  - by: receiver
//	    status: abort
//	    abort_code: rejected
//	    expect:
//	      error: { code: invalid_transition, local: true }
//	  - by: sender
//	    status: ready_for_settlement
//	    expect: { state: READY }
//	assertions:
//	  - type: final_state
//	    at: receiver
//	    state: READY
//
// Each step revises the producer's latest stored payment and submits it to
// the other side. A step without expect must be accepted. An expected
// error is either a rejection by the counterparty or, with local set, a
// refusal by the producer's own validation. Steps marked unchecked skip the
// producer's validation so the counterparty's checks can be exercised.
//
// # Assertion Types
//
//   - final_state: the latest payment stored at a VASP is in the given state
//   - history_length: a VASP stored exactly count revisions
//   - follow_up: the follow-up action of a VASP's actor, or "none"
//
// # Deterministic Testing
//
// Command ids, the reference id, and timestamps come from
// testutil.SequentialIDs and testutil.DeterministicClock, and both VASPs
// use fixed keys and in-memory SQLite stores, so a scenario yields the same
// trace on every run. RunWithGolden compares that trace with a golden file.
package harness
