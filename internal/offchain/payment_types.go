package offchain

import (
	"slices"

	"github.com/roach88/offchain/internal/ir"
)

// Status is a payment actor's status.
type Status string

const (
	StatusNone               Status = "none"
	StatusNeedsKycData       Status = "needs_kyc_data"
	StatusReadyForSettlement Status = "ready_for_settlement"
	StatusAbort              Status = "abort"
	StatusSoftMatch          Status = "soft_match"
)

var statuses = []string{
	string(StatusNone),
	string(StatusNeedsKycData),
	string(StatusReadyForSettlement),
	string(StatusAbort),
	string(StatusSoftMatch),
}

// AbortCode qualifies an abort status.
type AbortCode string

const (
	AbortNoKycNeeded AbortCode = "no-kyc-needed"
	AbortRejected    AbortCode = "rejected"
)

// KycType distinguishes natural persons from legal entities.
type KycType string

const (
	KycIndividual KycType = "individual"
	KycEntity     KycType = "entity"
)

// ActionCharge is the only payment action kind.
const ActionCharge = "charge"

// StatusObject is an actor's status with optional abort details.
type StatusObject struct {
	Status       Status
	AbortCode    AbortCode
	AbortMessage string
}

// AddressObject is a postal address.
type AddressObject struct {
	City       string
	Country    string
	Line1      string
	Line2      string
	PostalCode string
	State      string
}

// NationalIDObject is a government-issued identifier.
type NationalIDObject struct {
	IDValue string
	Country string
	Type    string
}

// KycData is the identity information one VASP discloses about its
// customer.
type KycData struct {
	Type            KycType
	PayloadVersion  int64
	GivenName       string
	Surname         string
	Address         *AddressObject
	DOB             string
	PlaceOfBirth    *AddressObject
	NationalID      *NationalIDObject
	LegalEntityName string
}

// PaymentActor is one side of a payment. Empty strings and nil values are
// absent on the wire.
type PaymentActor struct {
	Address           string
	Status            StatusObject
	KycData           *KycData
	AdditionalKycData string
	Metadata          []string
}

// PaymentAction is what is being paid.
type PaymentAction struct {
	Amount    uint64
	Currency  string
	Action    string
	Timestamp int64
}

// Payment is the record both VASPs hold a copy of.
type Payment struct {
	ReferenceID                string
	Sender                     PaymentActor
	Receiver                   PaymentActor
	Action                     PaymentAction
	RecipientSignature         string
	Description                string
	OriginalPaymentReferenceID string
}

// Actor returns the actor in slot a.
func (p *Payment) Actor(a Actor) *PaymentActor {
	if a == ActorSender {
		return &p.Sender
	}
	return &p.Receiver
}

// Clone returns a deep copy of p.
func (p Payment) Clone() Payment {
	p.Sender = p.Sender.clone()
	p.Receiver = p.Receiver.clone()
	return p
}

func (a PaymentActor) clone() PaymentActor {
	if a.KycData != nil {
		k := a.KycData.clone()
		a.KycData = &k
	}
	a.Metadata = slices.Clone(a.Metadata)
	return a
}

func (k KycData) clone() KycData {
	if k.Address != nil {
		addr := *k.Address
		k.Address = &addr
	}
	if k.PlaceOfBirth != nil {
		pob := *k.PlaceOfBirth
		k.PlaceOfBirth = &pob
	}
	if k.NationalID != nil {
		id := *k.NationalID
		k.NationalID = &id
	}
	return k
}

// ToIR encodes p in its wire shape.
func (p Payment) ToIR() ir.IRObject {
	b := builder{
		"reference_id": ir.IRString(p.ReferenceID),
		"sender":       p.Sender.toIR(),
		"receiver":     p.Receiver.toIR(),
		"action":       p.Action.toIR(),
	}
	b.str("recipient_signature", p.RecipientSignature)
	b.str("description", p.Description)
	b.str("original_payment_reference_id", p.OriginalPaymentReferenceID)
	return ir.IRObject(b)
}

func (a PaymentActor) toIR() ir.IRObject {
	b := builder{
		"address": ir.IRString(a.Address),
		"status":  a.Status.toIR(),
	}
	if a.KycData != nil {
		b["kyc_data"] = a.KycData.toIR()
	}
	b.str("additional_kyc_data", a.AdditionalKycData)
	b.strings("metadata", a.Metadata)
	return ir.IRObject(b)
}

func (s StatusObject) toIR() ir.IRObject {
	b := builder{"status": ir.IRString(s.Status)}
	b.str("abort_code", string(s.AbortCode))
	b.str("abort_message", s.AbortMessage)
	return ir.IRObject(b)
}

func (a PaymentAction) toIR() ir.IRObject {
	return ir.IRObject{
		"amount":    ir.IRInt(a.Amount),
		"currency":  ir.IRString(a.Currency),
		"action":    ir.IRString(a.Action),
		"timestamp": ir.IRInt(a.Timestamp),
	}
}

func (k KycData) toIR() ir.IRObject {
	b := builder{
		"type":            ir.IRString(k.Type),
		"payload_version": ir.IRInt(k.PayloadVersion),
	}
	b.str("given_name", k.GivenName)
	b.str("surname", k.Surname)
	b.str("dob", k.DOB)
	b.str("legal_entity_name", k.LegalEntityName)
	if k.Address != nil {
		b["address"] = k.Address.toIR()
	}
	if k.PlaceOfBirth != nil {
		b["place_of_birth"] = k.PlaceOfBirth.toIR()
	}
	if k.NationalID != nil {
		id := builder{"id_value": ir.IRString(k.NationalID.IDValue)}
		id.str("country", k.NationalID.Country)
		id.str("type", k.NationalID.Type)
		b["national_id"] = ir.IRObject(id)
	}
	return ir.IRObject(b)
}

func (a AddressObject) toIR() ir.IRObject {
	b := builder{}
	b.str("city", a.City)
	b.str("country", a.Country)
	b.str("line1", a.Line1)
	b.str("line2", a.Line2)
	b.str("postal_code", a.PostalCode)
	b.str("state", a.State)
	return ir.IRObject(b)
}

// DecodePayment decodes a payment object. Field paths in errors are rooted
// at path (usually "payment").
func DecodePayment(v ir.IRValue, path string) (Payment, error) {
	d := &decoder{}
	p := d.payment(d.newReader(v, path, paymentFields...))
	if d.err != nil {
		return Payment{}, d.err
	}
	return p, nil
}

func (d *decoder) payment(r *reader) Payment {
	return Payment{
		ReferenceID:                r.uuid("reference_id", true),
		Sender:                     d.actor(r.object("sender", true, actorFields...)),
		Receiver:                   d.actor(r.object("receiver", true, actorFields...)),
		Action:                     d.action(r.object("action", true, "amount", "currency", "action", "timestamp")),
		RecipientSignature:         r.str("recipient_signature", false),
		Description:                r.str("description", false),
		OriginalPaymentReferenceID: r.uuid("original_payment_reference_id", false),
	}
}

var paymentFields = []string{
	"reference_id", "sender", "receiver", "action",
	"recipient_signature", "description", "original_payment_reference_id",
}

var actorFields = []string{"address", "status", "kyc_data", "additional_kyc_data", "metadata"}

var kycFields = []string{
	"type", "payload_version", "given_name", "surname", "address", "dob",
	"place_of_birth", "national_id", "legal_entity_name",
}

var addressFields = []string{"city", "country", "line1", "line2", "postal_code", "state"}

func (d *decoder) actor(r *reader) PaymentActor {
	if r == nil {
		return PaymentActor{}
	}
	return PaymentActor{
		Address:           r.str("address", true),
		Status:            d.status(r.object("status", true, "status", "abort_code", "abort_message")),
		KycData:           d.kyc(r.object("kyc_data", false, kycFields...)),
		AdditionalKycData: r.str("additional_kyc_data", false),
		Metadata:          r.strings("metadata"),
	}
}

func (d *decoder) status(r *reader) StatusObject {
	if r == nil {
		return StatusObject{}
	}
	s := StatusObject{
		Status:       Status(r.enum("status", true, statuses...)),
		AbortCode:    AbortCode(r.enum("abort_code", false, string(AbortNoKycNeeded), string(AbortRejected))),
		AbortMessage: r.str("abort_message", false),
	}
	if d.err == nil && s.Status != StatusAbort && (s.AbortCode != "" || s.AbortMessage != "") {
		d.fail(CodeInvalidFieldValue, joinPath(r.path, "abort_code"), "abort details require status %q", StatusAbort)
	}
	return s
}

func (d *decoder) action(r *reader) PaymentAction {
	if r == nil {
		return PaymentAction{}
	}
	return PaymentAction{
		Amount:    r.uint("amount", true),
		Currency:  r.str("currency", true),
		Action:    r.enum("action", true, ActionCharge),
		Timestamp: r.int("timestamp", true),
	}
}

func (d *decoder) kyc(r *reader) *KycData {
	if r == nil {
		return nil
	}
	k := &KycData{
		Type:            KycType(r.enum("type", true, string(KycIndividual), string(KycEntity))),
		PayloadVersion:  r.int("payload_version", false),
		GivenName:       r.str("given_name", false),
		Surname:         r.str("surname", false),
		Address:         d.address(r.object("address", false, addressFields...)),
		DOB:             r.str("dob", false),
		PlaceOfBirth:    d.address(r.object("place_of_birth", false, addressFields...)),
		NationalID:      d.nationalID(r.object("national_id", false, "id_value", "country", "type")),
		LegalEntityName: r.str("legal_entity_name", false),
	}
	if k.PayloadVersion == 0 {
		k.PayloadVersion = 1
	}
	if d.err == nil && k.PayloadVersion != 1 {
		d.fail(CodeInvalidFieldValue, joinPath(r.path, "payload_version"), "unsupported payload version %d", k.PayloadVersion)
	}
	return k
}

func (d *decoder) address(r *reader) *AddressObject {
	if r == nil {
		return nil
	}
	return &AddressObject{
		City:       r.str("city", false),
		Country:    r.str("country", false),
		Line1:      r.str("line1", false),
		Line2:      r.str("line2", false),
		PostalCode: r.str("postal_code", false),
		State:      r.str("state", false),
	}
}

func (d *decoder) nationalID(r *reader) *NationalIDObject {
	if r == nil {
		return nil
	}
	return &NationalIDObject{
		IDValue: r.str("id_value", true),
		Country: r.str("country", false),
		Type:    r.str("type", false),
	}
}

// NewKycData returns individual KYC data with the current payload version.
func NewKycData(givenName, surname string) *KycData {
	return &KycData{Type: KycIndividual, PayloadVersion: 1, GivenName: givenName, Surname: surname}
}
