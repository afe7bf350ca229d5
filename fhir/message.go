// Package fhir defines the FHIR R5 Patient wire message and the
// adapter that produces it from the canonical domain record.
//
// The message layout mirrors the FHIR R5 core Patient resource as it
// appears on the wire: primitive fields are wrapped in single-value
// message types and coded fields carry the numeric code values of the
// standard value sets.
package fhir

// AdministrativeGender carries the FHIR administrative-gender code
// values.
type AdministrativeGender int32

const (
	GenderUninitialized AdministrativeGender = 0
	GenderMale          AdministrativeGender = 1
	GenderFemale        AdministrativeGender = 2
	GenderOther         AdministrativeGender = 3
	GenderUnknown       AdministrativeGender = 4
)

// ContactPointSystem carries the FHIR contact-point-system code values.
type ContactPointSystem int32

const (
	ContactSystemUninitialized ContactPointSystem = 0
	ContactSystemPhone         ContactPointSystem = 1
	ContactSystemFax           ContactPointSystem = 2
	ContactSystemEmail         ContactPointSystem = 3
)

// Id is the FHIR id primitive.
type Id struct {
	Value string `json:"value" msgpack:"value"`
}

// Uri is the FHIR uri primitive.
type Uri struct {
	Value string `json:"value" msgpack:"value"`
}

// String is the FHIR string primitive.
type String struct {
	Value string `json:"value" msgpack:"value"`
}

// Date is the FHIR date primitive: microseconds since the Unix epoch
// with day precision.
type Date struct {
	ValueUS int64 `json:"value_us" msgpack:"value_us"`
}

// Identifier associates an external identifier with the resource.
type Identifier struct {
	System *Uri    `json:"system,omitempty" msgpack:"system,omitempty"`
	Value  *String `json:"value,omitempty" msgpack:"value,omitempty"`
}

// HumanName holds a family name and given names.
type HumanName struct {
	Family *String   `json:"family,omitempty" msgpack:"family,omitempty"`
	Given  []*String `json:"given,omitempty" msgpack:"given,omitempty"`
}

// ContactPointSystemCode wraps the contact channel code.
type ContactPointSystemCode struct {
	Value ContactPointSystem `json:"value" msgpack:"value"`
}

// ContactPoint is one telecom entry (phone, email, ...).
type ContactPoint struct {
	System *ContactPointSystemCode `json:"system,omitempty" msgpack:"system,omitempty"`
	Value  *String                 `json:"value,omitempty" msgpack:"value,omitempty"`
}

// GenderCode wraps the administrative gender code.
type GenderCode struct {
	Value AdministrativeGender `json:"value" msgpack:"value"`
}

// Address is a postal address.
type Address struct {
	City       *String `json:"city,omitempty" msgpack:"city,omitempty"`
	State      *String `json:"state,omitempty" msgpack:"state,omitempty"`
	Country    *String `json:"country,omitempty" msgpack:"country,omitempty"`
	PostalCode *String `json:"postal_code,omitempty" msgpack:"postal_code,omitempty"`
}

// Patient is the FHIR R5 Patient resource as synchronized to peers.
// Each conversion produces a fresh message; instances are never
// mutated after construction.
type Patient struct {
	Id         *Id             `json:"id,omitempty" msgpack:"id,omitempty"`
	Identifier []*Identifier   `json:"identifier,omitempty" msgpack:"identifier,omitempty"`
	Name       []*HumanName    `json:"name,omitempty" msgpack:"name,omitempty"`
	Telecom    []*ContactPoint `json:"telecom,omitempty" msgpack:"telecom,omitempty"`
	Gender     *GenderCode     `json:"gender,omitempty" msgpack:"gender,omitempty"`
	BirthDate  *Date           `json:"birth_date,omitempty" msgpack:"birth_date,omitempty"`
	Address    []*Address      `json:"address,omitempty" msgpack:"address,omitempty"`
}

// LogicalID returns the resource's logical id, or "" when unset.
func (p *Patient) LogicalID() string {
	if p == nil || p.Id == nil {
		return ""
	}
	return p.Id.Value
}
