// Package offense defines the closed catalogue of offense kinds and their
// base fines. This package is PURE and must NOT import any infrastructure
// packages (network, events, platform).
package offense

// Kind represents a concrete offense type. Offenses are classified into a
// Kind exactly once, at ingestion; nothing downstream re-inspects raw input.
type Kind string

const (
	KindTheft            Kind = "THEFT"
	KindRobbery          Kind = "ROBBERY"
	KindAssault          Kind = "ASSAULT"
	KindVehicleTheft     Kind = "VEHICLE_THEFT"
	KindDrugPossession   Kind = "DRUG_POSSESSION"
	KindWeaponPossession Kind = "WEAPON_POSSESSION"
	KindVandalism        Kind = "VANDALISM"
	KindHomicide         Kind = "HOMICIDE"
)

// VictimType qualifies a homicide instance. It is ignored for every other
// Kind.
type VictimType string

const (
	VictimPolice   VictimType = "POLICE"
	VictimEmployee VictimType = "EMPLOYEE"
	VictimCivilian VictimType = "CIVILIAN"
)

// DefaultFine is substituted when a Kind has no table entry.
const DefaultFine int64 = 1000

// EvadedArrestFine is a flat addend applied once when the raw pre-processing
// counter reports that the subject evaded arrest. The authoritative ledger
// has no equivalent flag.
const EvadedArrestFine int64 = 2500

// FineTable maps each offense kind to its base fine. Homicide is deliberately
// absent: it is priced exclusively through HomicideFines.
var FineTable = map[Kind]int64{
	KindTheft:            500,
	KindRobbery:          2000,
	KindAssault:          1500,
	KindVehicleTheft:     3000,
	KindDrugPossession:   2500,
	KindWeaponPossession: 4000,
	KindVandalism:        800,
}

// HomicideFines maps the victim type to the per-instance homicide fine.
var HomicideFines = map[VictimType]int64{
	VictimPolice:   25000,
	VictimEmployee: 20000,
	VictimCivilian: 15000,
}

// DefaultJailMinutes is substituted when a Kind has no jail-time entry.
const DefaultJailMinutes = 10

// JailMinutes maps each offense kind to its base confinement time in
// simulated-time units, before the sentence multiplier chain.
var JailMinutes = map[Kind]int{
	KindTheft:            5,
	KindRobbery:          15,
	KindAssault:          10,
	KindVehicleTheft:     20,
	KindDrugPossession:   15,
	KindWeaponPossession: 25,
	KindVandalism:        5,
	KindHomicide:         60,
}

// BaseJailMinutes returns the per-instance confinement time for a kind, with
// the default for unknown kinds.
func BaseJailMinutes(k Kind) int {
	if minutes, ok := JailMinutes[k]; ok {
		return minutes
	}
	return DefaultJailMinutes
}

// Instance is a single offense occurrence inside the authoritative ledger.
type Instance struct {
	Kind       Kind       `json:"kind"`
	VictimType VictimType `json:"victim_type,omitempty"` // homicide only
}

// Record is a resolved (kind, count) pair. Immutable once produced by the
// resolver. VictimType is only meaningful when Kind is KindHomicide.
type Record struct {
	Kind       Kind       `json:"kind"`
	Count      int        `json:"count"`
	VictimType VictimType `json:"victim_type,omitempty"`
}

// Known reports whether the kind is part of the closed catalogue.
func Known(k Kind) bool {
	if k == KindHomicide {
		return true
	}
	_, ok := FineTable[k]
	return ok
}

// BaseFine returns the per-instance fine for a kind. Homicide with a victim
// type returns the homicide table entry; an unspecified victim defaults to
// the civilian amount. Any other kind falls back to DefaultFine when the
// table has no entry. Pure lookup, no side effects.
func BaseFine(k Kind, victim VictimType) int64 {
	if k == KindHomicide {
		if amount, ok := HomicideFines[victim]; ok {
			return amount
		}
		return HomicideFines[VictimCivilian]
	}
	if amount, ok := FineTable[k]; ok {
		return amount
	}
	return DefaultFine
}
