// Package domain holds the canonical patient record and the event type
// exchanged between the CDC listener, the ingestion endpoint and the
// sync forwarder.
package domain

import (
	"encoding/json"
	"fmt"
)

// Location is the all-or-nothing address tuple carried by a patient
// record. It serializes as a JSON array of exactly four strings
// (city, region, country, postal code) to stay compatible with the
// upstream ingestion contract.
type Location struct {
	City    string
	Region  string
	Country string
	Postal  string
}

// MarshalJSON encodes the location as a 4-element array.
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]string{l.City, l.Region, l.Country, l.Postal})
}

// UnmarshalJSON decodes a 4-element array into the location tuple.
func (l *Location) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 4 {
		return fmt.Errorf("location must have exactly 4 elements, got %d", len(parts))
	}
	l.City, l.Region, l.Country, l.Postal = parts[0], parts[1], parts[2], parts[3]
	return nil
}

// Patient is the canonical intermediate record between the legacy
// demographic table and the FHIR wire format. DemographicNo is the
// join key to the source system and must never be empty on an emitted
// event; every other field is optional.
type Patient struct {
	DemographicNo string    `json:"demographic_no" msgpack:"demographic_no"`
	FirstName     *string   `json:"first_name,omitempty" msgpack:"first_name,omitempty"`
	LastName      *string   `json:"last_name,omitempty" msgpack:"last_name,omitempty"`
	DateOfBirth   *string   `json:"date_of_birth,omitempty" msgpack:"date_of_birth,omitempty"`
	Location      *Location `json:"location,omitempty" msgpack:"location,omitempty"`
	Sex           *string   `json:"sex,omitempty" msgpack:"sex,omitempty"`
	Phone         *string   `json:"phone,omitempty" msgpack:"phone,omitempty"`
	Email         *string   `json:"email,omitempty" msgpack:"email,omitempty"`
}

// Validate checks the record invariants that must hold before the
// patient is allowed onto the event bus.
func (p *Patient) Validate() error {
	if p.DemographicNo == "" {
		return fmt.Errorf("patient is missing demographic_no")
	}
	return nil
}
