package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/offchain/internal/ir"
	"github.com/roach88/offchain/internal/offchain"
)

// StateOptions holds flags for the state command.
type StateOptions struct {
	*RootOptions
	Actor string
}

// StateReport describes how a payment classifies.
type StateReport struct {
	ReferenceID string `json:"reference_id"`
	State       string `json:"state"`
	Initial     bool   `json:"initial"`
	Terminal    bool   `json:"terminal"`
	Producer    string `json:"producer"`
	Actor       string `json:"actor"`
	FollowUp    string `json:"follow_up,omitempty"`
}

func (r StateReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "reference_id: %s\n", r.ReferenceID)
	fmt.Fprintf(&b, "state:        %s", r.State)
	switch {
	case r.Initial:
		b.WriteString(" (initial)")
	case r.Terminal:
		b.WriteString(" (terminal)")
	}
	fmt.Fprintf(&b, "\nproducer:     %s\n", r.Producer)
	follow := r.FollowUp
	if follow == "" {
		follow = "none"
	}
	fmt.Fprintf(&b, "%s action: %s", r.Actor, follow)
	return b.String()
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state <payment.json>",
		Short: "Classify a payment and show the next action",
		Long: `Classify a payment object into its protocol state and print the
follow-up action for one actor.

The file holds either a bare payment object or a PaymentCommand payload
with a "payment" field.

Example:
  offchain state payment.json --actor receiver`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", string(offchain.ActorSender), "actor to report the follow-up action for (sender|receiver)")

	return cmd
}

func runState(opts *StateOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	actor, err := parseActor(opts.Actor)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --actor", err)
	}

	payment, err := loadPayment(path)
	if err != nil {
		return reject(out, "load "+path, err)
	}
	out.VerboseLog("loaded payment %s from %s", payment.ReferenceID, path)

	c := offchain.NewPaymentCommand("", actor, false, payment)
	s, err := c.State()
	if err != nil {
		return reject(out, "classify payment", err)
	}

	report := StateReport{
		ReferenceID: payment.ReferenceID,
		State:       s.ID,
		Initial:     offchain.PaymentStates.IsInitial(s),
		Terminal:    offchain.PaymentStates.IsTerminal(s),
		Producer:    string(offchain.TriggerActor(s)),
		Actor:       string(actor),
	}
	if action, ok := offchain.FollowUp(actor, s); ok {
		report.FollowUp = string(action)
	}
	return out.Success(report)
}

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Actor   string
	Inbound bool
}

// CheckReport is the output of a successful check.
type CheckReport struct {
	ReferenceID string `json:"reference_id"`
	From        string `json:"from,omitempty"`
	To          string `json:"to"`
}

func (r CheckReport) String() string {
	if r.From == "" {
		return fmt.Sprintf("valid initial revision of %s: %s", r.ReferenceID, r.To)
	}
	return fmt.Sprintf("valid revision of %s: %s -> %s", r.ReferenceID, r.From, r.To)
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check [prior.json] <next.json>",
		Short: "Validate a payment revision against its prior",
		Long: `Validate a payment revision the way an inbound or outbound command is
validated: state classification, producer, transition, and write-once
fields. With a single file the revision is checked as the first one.

--actor names the local side. With --inbound the revision is treated as
received from the other side.

Example:
  offchain check prior.json next.json --actor sender --inbound`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", string(offchain.ActorSender), "local actor (sender|receiver)")
	cmd.Flags().BoolVar(&opts.Inbound, "inbound", false, "treat the revision as received from the counterparty")

	return cmd
}

func runCheck(opts *CheckOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	actor, err := parseActor(opts.Actor)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --actor", err)
	}

	var prior *offchain.PaymentCommand
	if len(args) == 2 {
		p, err := loadPayment(args[0])
		if err != nil {
			return reject(out, "load "+args[0], err)
		}
		prior = offchain.NewPaymentCommand("", actor, false, p)
		args = args[1:]
	}

	next, err := loadPayment(args[0])
	if err != nil {
		return reject(out, "load "+args[0], err)
	}
	c := offchain.NewPaymentCommand("", actor, opts.Inbound, next)

	if err := c.Validate(prior); err != nil {
		return reject(out, "revision rejected", err)
	}

	to, err := c.State()
	if err != nil {
		return reject(out, "classify payment", err)
	}
	report := CheckReport{ReferenceID: next.ReferenceID, To: to.ID}
	if prior != nil {
		from, err := prior.State()
		if err != nil {
			return reject(out, "classify prior", err)
		}
		report.From = from.ID
	}
	return out.Success(report)
}

func parseActor(s string) (offchain.Actor, error) {
	switch a := offchain.Actor(s); a {
	case offchain.ActorSender, offchain.ActorReceiver:
		return a, nil
	}
	return "", fmt.Errorf("unknown actor %q", s)
}

// loadPayment reads a payment file. Both a bare payment object and a
// PaymentCommand payload are accepted.
func loadPayment(path string) (offchain.Payment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return offchain.Payment{}, err
	}
	obj, err := ir.ParseObject(data)
	if err != nil {
		return offchain.Payment{}, offchain.FieldError(offchain.TypeCommandError, offchain.CodeInvalidJSON, "", "%v", err)
	}
	if _, ok := obj["payment"]; ok {
		return offchain.DecodePaymentPayload(obj)
	}
	return offchain.DecodePayment(obj, "payment")
}

// reject reports err and converts it to an ExitError. Protocol errors are
// printed with their code and field.
func reject(out *OutputFormatter, message string, err error) error {
	var oe *offchain.Error
	if errors.As(err, &oe) {
		if werr := out.Rejection(oe); werr != nil {
			return werr
		}
		return WrapExitError(ExitFailure, message, err)
	}
	if werr := out.Error("io", err.Error(), nil); werr != nil {
		return werr
	}
	return WrapExitError(ExitCommandError, message, err)
}
