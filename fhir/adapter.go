package fhir

import (
	"strings"
	"time"

	"github.com/ArsMedicaTech/fhir-sync/domain"
)

// IdentifierSystem is the namespace URI scoping demographic numbers
// from the source system.
const IdentifierSystem = "urn:arsmedicatech:demographic_no"

const birthDateLayout = "2006-01-02"

// ToPatient converts a canonical domain record into a fresh FHIR
// Patient message. Pure transformation: no I/O and no error path.
// Unparsable birth dates are omitted, absent sex produces no gender
// field, and a missing location never emits an address.
func ToPatient(src domain.Patient) *Patient {
	dest := &Patient{}

	// Logical id and identifier both derive from the demographic number.
	dest.Id = &Id{Value: src.DemographicNo}
	dest.Identifier = append(dest.Identifier, &Identifier{
		System: &Uri{Value: IdentifierSystem},
		Value:  &String{Value: src.DemographicNo},
	})

	if src.FirstName != nil || src.LastName != nil {
		name := &HumanName{}
		if src.LastName != nil {
			name.Family = &String{Value: *src.LastName}
		}
		if src.FirstName != nil {
			name.Given = append(name.Given, &String{Value: *src.FirstName})
		}
		dest.Name = append(dest.Name, name)
	}

	if src.Phone != nil {
		dest.Telecom = append(dest.Telecom, &ContactPoint{
			System: &ContactPointSystemCode{Value: ContactSystemPhone},
			Value:  &String{Value: *src.Phone},
		})
	}
	if src.Email != nil {
		dest.Telecom = append(dest.Telecom, &ContactPoint{
			System: &ContactPointSystemCode{Value: ContactSystemEmail},
			Value:  &String{Value: *src.Email},
		})
	}

	if src.Sex != nil {
		dest.Gender = &GenderCode{Value: normalizeGender(*src.Sex)}
	}

	if src.DateOfBirth != nil {
		if date, err := time.ParseInLocation(birthDateLayout, *src.DateOfBirth, time.UTC); err == nil {
			dest.BirthDate = &Date{ValueUS: date.Unix() * 1_000_000}
		}
	}

	if loc := src.Location; loc != nil {
		dest.Address = append(dest.Address, &Address{
			City:       &String{Value: loc.City},
			State:      &String{Value: loc.Region},
			Country:    &String{Value: loc.Country},
			PostalCode: &String{Value: loc.Postal},
		})
	}

	return dest
}

// normalizeGender maps the free-text sex value onto the administrative
// gender code set. Anything unrecognized is explicitly coded unknown,
// which is distinct from an absent sex (no gender field at all).
func normalizeGender(sex string) AdministrativeGender {
	switch strings.ToLower(sex) {
	case "male", "m":
		return GenderMale
	case "female", "f":
		return GenderFemale
	case "other":
		return GenderOther
	default:
		return GenderUnknown
	}
}
