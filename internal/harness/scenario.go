package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/offchain/internal/offchain"
)

// Scenario is a scripted exchange of payment revisions between a sending
// VASP and a receiving VASP.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Payment describes the payment the first step creates.
	Payment PaymentSetup `yaml:"payment"`

	// DualAttestationLimit overrides the ledger limit. Zero means
	// DefaultDualAttestationLimit.
	DualAttestationLimit uint64 `yaml:"dual_attestation_limit,omitempty"`

	// Steps are applied in order. The first must create the payment.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against both VASPs after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// PaymentSetup holds the fixed part of the payment.
type PaymentSetup struct {
	Amount      uint64 `yaml:"amount"`
	Currency    string `yaml:"currency"`
	Description string `yaml:"description,omitempty"`
}

// Step is one revision produced by one side and delivered to the other.
type Step struct {
	// By is the producing actor: sender or receiver.
	By string `yaml:"by"`

	// Init creates the payment. Only the sender may init.
	Init bool `yaml:"init,omitempty"`

	// Status sets the producer's status. With "abort", AbortCode and
	// AbortMessage are carried along.
	Status       string `yaml:"status,omitempty"`
	AbortCode    string `yaml:"abort_code,omitempty"`
	AbortMessage string `yaml:"abort_message,omitempty"`

	Kyc               *KycStep `yaml:"kyc,omitempty"`
	AdditionalKycData string   `yaml:"additional_kyc_data,omitempty"`
	Metadata          []string `yaml:"metadata,omitempty"`

	// Sign sets a valid recipient signature made with the producer's key.
	Sign bool `yaml:"sign,omitempty"`
	// Signature sets the recipient signature verbatim.
	Signature string `yaml:"signature,omitempty"`

	// SenderSubaddress rewrites the sender address to another subaddress of
	// the sending VASP.
	SenderSubaddress *uint8 `yaml:"sender_subaddress,omitempty"`

	// Unchecked delivers the revision without local validation and does
	// not store it, so the counterparty's checks are exercised.
	Unchecked bool `yaml:"unchecked,omitempty"`

	// Expect describes the outcome. Nil means the step must be accepted.
	Expect *Expect `yaml:"expect,omitempty"`
}

// KycStep is the KYC data set by a step.
type KycStep struct {
	GivenName string `yaml:"given_name"`
	Surname   string `yaml:"surname"`
}

// Expect describes a step's outcome. With Error set, the step must fail
// with that code; otherwise it must be accepted, in State when given.
type Expect struct {
	State string         `yaml:"state,omitempty"`
	Error *ExpectedError `yaml:"error,omitempty"`
}

// ExpectedError names the error a step must fail with.
type ExpectedError struct {
	Code  string `yaml:"code"`
	Field string `yaml:"field,omitempty"`
	// Local is true when the producer's own validation must refuse the
	// revision before it is sent.
	Local bool `yaml:"local,omitempty"`
}

// Assertion checks the final stored payment at one VASP.
type Assertion struct {
	// Type is final_state, history_length, or follow_up.
	Type string `yaml:"type"`

	// At names the VASP by its actor: sender or receiver.
	At string `yaml:"at"`

	// State is the expected latest state (final_state).
	State string `yaml:"state,omitempty"`

	// Count is the expected number of stored revisions (history_length).
	Count int `yaml:"count,omitempty"`

	// Action is the expected follow-up action, or "none" (follow_up).
	Action string `yaml:"action,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState    = "final_state"
	AssertHistoryLength = "history_length"
	AssertFollowUp      = "follow_up"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Payment.Amount == 0 {
		return fmt.Errorf("payment.amount is required")
	}
	if s.Payment.Currency == "" {
		return fmt.Errorf("payment.currency is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if !s.Steps[0].Init {
		return fmt.Errorf("steps[0]: the first step must init the payment")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validActor(s string) bool {
	return s == string(offchain.ActorSender) || s == string(offchain.ActorReceiver)
}

func validateStep(index int, s *Step) error {
	if !validActor(s.By) {
		return fmt.Errorf("steps[%d]: by must be sender or receiver, got %q", index, s.By)
	}
	if s.Init {
		if s.By != string(offchain.ActorSender) {
			return fmt.Errorf("steps[%d]: only the sender may init", index)
		}
		if s.Status != "" || s.Sign || s.Signature != "" {
			return fmt.Errorf("steps[%d]: init takes kyc only", index)
		}
	} else if index == 0 {
		return fmt.Errorf("steps[%d]: the first step must init the payment", index)
	}
	if s.AbortCode != "" && s.Status != string(offchain.StatusAbort) {
		return fmt.Errorf("steps[%d]: abort_code requires status abort", index)
	}
	if s.Sign && s.Signature != "" {
		return fmt.Errorf("steps[%d]: sign and signature are exclusive", index)
	}
	if s.Expect != nil && s.Expect.Error != nil {
		if s.Expect.Error.Code == "" {
			return fmt.Errorf("steps[%d].expect.error: code is required", index)
		}
		if s.Expect.State != "" {
			return fmt.Errorf("steps[%d].expect: state and error are exclusive", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if !validActor(a.At) {
		return fmt.Errorf("assertions[%d]: at must be sender or receiver, got %q", index, a.At)
	}

	switch a.Type {
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	case AssertHistoryLength:
		if a.Count <= 0 {
			return fmt.Errorf("assertions[%d]: count must be positive for history_length", index)
		}
	case AssertFollowUp:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for follow_up", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
