package fines

import (
	"testing"

	"github.com/custodia-rp/custody-server/internal/domain/offense"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
)

func newTestCalculator(counter *MemoryCounter) *Calculator {
	return NewCalculator(counter, logger.NewLogger())
}

func TestRepeatMultiplierTable(t *testing.T) {
	cases := []struct {
		count int
		want  float64
	}{
		{0, 1.0},
		{1, 1.0},
		{2, 1.25},
		{3, 1.5},
		{4, 2.0},
		{10, 2.0},
	}

	for _, c := range cases {
		if got := RepeatMultiplier(c.count); got != c.want {
			t.Errorf("RepeatMultiplier(%d) = %v, want %v", c.count, got, c.want)
		}
	}
}

func TestCalculateTotalFineFromLedger(t *testing.T) {
	calc := newTestCalculator(NewMemoryCounter())

	ledger := &Ledger{
		SubjectID: "S1",
		Instances: []*offense.Instance{
			{Kind: offense.KindTheft},
			{Kind: offense.KindTheft},
			{Kind: offense.KindAssault},
		},
	}

	// (500*2 + 1500) * 1.5 (three instances) = 3750
	if got := calc.CalculateTotalFine("S1", ledger); got != 3750 {
		t.Errorf("Total fine = %d, want 3750", got)
	}
}

func TestCalculateTotalFineHomicideBypassesGeneralTable(t *testing.T) {
	calc := newTestCalculator(NewMemoryCounter())

	ledger := &Ledger{
		SubjectID: "S1",
		Instances: []*offense.Instance{
			{Kind: offense.KindHomicide, VictimType: offense.VictimPolice},
		},
	}

	// Single instance: 25000 * 1.0
	if got := calc.CalculateTotalFine("S1", ledger); got != 25000 {
		t.Errorf("Homicide fine = %d, want victim-table 25000", got)
	}
}

func TestCalculateTotalFineMixedVictimHomicides(t *testing.T) {
	calc := newTestCalculator(NewMemoryCounter())

	ledger := &Ledger{
		SubjectID: "S1",
		Instances: []*offense.Instance{
			{Kind: offense.KindHomicide, VictimType: offense.VictimPolice},
			{Kind: offense.KindHomicide, VictimType: offense.VictimEmployee},
		},
	}

	// (25000 + 20000) * 1.25 = 56250
	if got := calc.CalculateTotalFine("S1", ledger); got != 56250 {
		t.Errorf("Mixed homicide fine = %d, want 56250", got)
	}
}

func TestCalculateTotalFineCounterFallbackSkipsMultiplier(t *testing.T) {
	counter := NewMemoryCounter()
	counter.Record("S1", offense.KindTheft, 2)
	counter.Record("S1", offense.KindAssault, 1)

	calc := newTestCalculator(counter)

	// No ledger handle: the repeat-multiplier step is skipped entirely,
	// not applied as 1.0. 500*2 + 1500 = 2500.
	if got := calc.CalculateTotalFine("S1", nil); got != 2500 {
		t.Errorf("Fallback fine = %d, want 2500 without any multiplier", got)
	}
}

func TestCalculateTotalFineEvadedArrestAddend(t *testing.T) {
	counter := NewMemoryCounter()
	counter.Record("S1", offense.KindVandalism, 1)
	counter.SetEvadedArrest("S1", true)

	calc := newTestCalculator(counter)

	// 800 + 2500 evaded addend, no multiplier without a handle.
	if got := calc.CalculateTotalFine("S1", nil); got != 3300 {
		t.Errorf("Fine with evaded arrest = %d, want 3300", got)
	}
}

func TestCalculateTotalFineEvadedOnly(t *testing.T) {
	counter := NewMemoryCounter()
	counter.SetEvadedArrest("S1", true)

	calc := newTestCalculator(counter)

	if got := calc.CalculateTotalFine("S1", nil); got != offense.EvadedArrestFine {
		t.Errorf("Evaded-only fine = %d, want %d", got, offense.EvadedArrestFine)
	}
}

func TestCalculateTotalFineLedgerPathIgnoresEvadedFlag(t *testing.T) {
	counter := NewMemoryCounter()
	counter.SetEvadedArrest("S1", true)

	calc := newTestCalculator(counter)

	ledger := &Ledger{
		SubjectID: "S1",
		Instances: []*offense.Instance{{Kind: offense.KindTheft}},
	}

	// The ledger is the sole source; the counter's evaded flag never applies.
	if got := calc.CalculateTotalFine("S1", ledger); got != 500 {
		t.Errorf("Ledger-path fine = %d, want 500 without evaded addend", got)
	}
}

func TestCalculateTotalFineEmptyHandleWithCounterCounts(t *testing.T) {
	counter := NewMemoryCounter()
	counter.Record("S1", offense.KindTheft, 2)
	counter.Record("S1", offense.KindTheft, 1) // running tally: 3

	calc := newTestCalculator(counter)

	// Counts come from the counter, but the handle still drives the
	// multiplier: 3 counter instances are not ledger instances, so the
	// empty handle counts as 1 → multiplier 1.0.
	ledger := &Ledger{SubjectID: "S1"}
	if got := calc.CalculateTotalFine("S1", ledger); got != 1500 {
		t.Errorf("Fine = %d, want 1500 (empty handle → multiplier 1.0)", got)
	}
}

func TestCalculateTotalFineUnknownKindUsesDefault(t *testing.T) {
	counter := NewMemoryCounter()
	counter.Record("S1", offense.Kind("JAYWALKING"), 2)

	calc := newTestCalculator(counter)

	if got := calc.CalculateTotalFine("S1", nil); got != 2*offense.DefaultFine {
		t.Errorf("Unknown kind fine = %d, want %d", got, 2*offense.DefaultFine)
	}
}

func TestCalculateTotalFineEmptyAndBlank(t *testing.T) {
	calc := newTestCalculator(NewMemoryCounter())

	if got := calc.CalculateTotalFine("GHOST", nil); got != 0 {
		t.Errorf("Fine for unrecorded subject = %d, want 0", got)
	}
	if got := calc.CalculateTotalFine("", nil); got != 0 {
		t.Errorf("Fine for blank subject = %d, want 0", got)
	}
}

func TestGetBaseFine(t *testing.T) {
	calc := newTestCalculator(NewMemoryCounter())

	if got := calc.GetBaseFine(offense.KindWeaponPossession, ""); got != 4000 {
		t.Errorf("GetBaseFine(WEAPON_POSSESSION) = %d, want 4000", got)
	}
	if got := calc.GetBaseFine(offense.KindHomicide, offense.VictimEmployee); got != 20000 {
		t.Errorf("GetBaseFine(HOMICIDE, EMPLOYEE) = %d, want 20000", got)
	}
}
