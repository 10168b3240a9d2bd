package offchain

import (
	"github.com/roach88/offchain/internal/condition"
	"github.com/roach88/offchain/internal/ir"
	"github.com/roach88/offchain/internal/machine"
)

// Actor names a side of a payment.
type Actor string

const (
	ActorSender   Actor = "sender"
	ActorReceiver Actor = "receiver"
)

// Opponent returns the other side.
func (a Actor) Opponent() Actor {
	if a == ActorSender {
		return ActorReceiver
	}
	return ActorSender
}

// ActionKind is the work an actor must do next.
type ActionKind string

const (
	ActionEvaluateKycData   ActionKind = "evaluate_kyc_data"
	ActionReviewKycData     ActionKind = "review_kyc_data"
	ActionClearSoftMatch    ActionKind = "clear_soft_match"
	ActionSubmitTransaction ActionKind = "submit_transaction"
)

// Payment state identifiers.
const (
	StateSInit     = "S_INIT"
	StateRSend     = "R_SEND"
	StateRAbort    = "R_ABORT"
	StateRSoft     = "R_SOFT"
	StateSSoftSend = "S_SOFT_SEND"
	StateReady     = "READY"
	StateSAbort    = "S_ABORT"
	StateSSoft     = "S_SOFT"
	StateRSoftSend = "R_SOFT_SEND"
)

func statusIs(path condition.Path, s Status) condition.Value {
	return condition.Value{Path: path, Expected: ir.IRString(s)}
}

func set(path condition.Path) condition.Field { return condition.Field{Path: path} }

func notSet(path condition.Path) condition.Field { return condition.Field{Path: path, NotSet: true} }

// The nine payment states. Each pins both actor statuses, except R_ABORT
// which holds whatever the sender's status was when the receiver aborted.
var (
	SInit = machine.NewState(StateSInit, condition.Require{
		Conditions: []condition.Condition{
			statusIs(PathSenderStatus, StatusNeedsKycData),
			statusIs(PathReceiverStatus, StatusNone),
		},
		Validation: set(PathSenderKycData),
	})
	RSend = machine.NewState(StateRSend, condition.Require{
		Conditions: []condition.Condition{
			statusIs(PathSenderStatus, StatusNeedsKycData),
			statusIs(PathReceiverStatus, StatusReadyForSettlement),
		},
		Validation: condition.All(set(PathReceiverKycData), set(PathRecipientSignature)),
	})
	RAbort = machine.NewState(StateRAbort, condition.All(
		statusIs(PathReceiverStatus, StatusAbort),
	))
	RSoft = machine.NewState(StateRSoft, condition.All(
		statusIs(PathSenderStatus, StatusNeedsKycData),
		statusIs(PathReceiverStatus, StatusSoftMatch),
		notSet(PathSenderAdditionalKycData),
	))
	SSoftSend = machine.NewState(StateSSoftSend, condition.All(
		statusIs(PathSenderStatus, StatusNeedsKycData),
		statusIs(PathReceiverStatus, StatusSoftMatch),
		set(PathSenderAdditionalKycData),
	))
	Ready = machine.NewState(StateReady, condition.All(
		statusIs(PathSenderStatus, StatusReadyForSettlement),
		statusIs(PathReceiverStatus, StatusReadyForSettlement),
	))
	SAbort = machine.NewState(StateSAbort, condition.All(
		statusIs(PathSenderStatus, StatusAbort),
		statusIs(PathReceiverStatus, StatusReadyForSettlement),
	))
	SSoft = machine.NewState(StateSSoft, condition.All(
		statusIs(PathSenderStatus, StatusSoftMatch),
		statusIs(PathReceiverStatus, StatusReadyForSettlement),
		notSet(PathReceiverAdditionalKycData),
	))
	RSoftSend = machine.NewState(StateRSoftSend, condition.All(
		statusIs(PathSenderStatus, StatusSoftMatch),
		statusIs(PathReceiverStatus, StatusReadyForSettlement),
		set(PathReceiverAdditionalKycData),
	))
)

// PaymentStates is the payment state graph. S_INIT is its only initial
// state; READY, S_ABORT and R_ABORT are terminal.
var PaymentStates = machine.MustBuild(
	machine.Transition{From: SInit, To: RSend},
	machine.Transition{From: SInit, To: RAbort},
	machine.Transition{From: SInit, To: RSoft},

	machine.Transition{From: RSend, To: Ready},
	machine.Transition{From: RSend, To: SAbort},
	machine.Transition{From: RSend, To: SSoft},

	machine.Transition{From: RSoft, To: SSoftSend},
	machine.Transition{From: RSoft, To: RAbort},

	machine.Transition{From: SSoftSend, To: RAbort},
	machine.Transition{From: SSoftSend, To: RSend},

	machine.Transition{From: SSoft, To: RSoftSend},
	machine.Transition{From: SSoft, To: RAbort},

	machine.Transition{From: RSoftSend, To: SAbort},
	machine.Transition{From: RSoftSend, To: Ready},
)

// receiverTriggered lists the states only the receiver may produce.
var receiverTriggered = map[string]bool{
	StateRSend:     true,
	StateRAbort:    true,
	StateRSoft:     true,
	StateRSoftSend: true,
}

// TriggerActor returns the actor allowed to produce a revision in state s.
func TriggerActor(s *machine.State) Actor {
	if receiverTriggered[s.ID] {
		return ActorReceiver
	}
	return ActorSender
}

type followUpKey struct {
	actor Actor
	state string
}

var followUps = map[followUpKey]ActionKind{
	{ActorReceiver, StateSInit}:     ActionEvaluateKycData,
	{ActorReceiver, StateSSoftSend}: ActionReviewKycData,
	{ActorReceiver, StateSSoft}:     ActionClearSoftMatch,
	{ActorSender, StateRSend}:       ActionEvaluateKycData,
	{ActorSender, StateRSoft}:       ActionClearSoftMatch,
	{ActorSender, StateRSoftSend}:   ActionReviewKycData,
	{ActorSender, StateReady}:       ActionSubmitTransaction,
}

// FollowUp returns the action actor must take in state s, if any.
func FollowUp(actor Actor, s *machine.State) (ActionKind, bool) {
	a, ok := followUps[followUpKey{actor, s.ID}]
	return a, ok
}
