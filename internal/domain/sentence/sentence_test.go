package sentence

import "testing"

func TestNewSpecMultiplierChain(t *testing.T) {
	// 10 * 1.5 * 1.25 * 1.1 * 2.0 * 1.0 = 41.25 → 41
	spec := NewSpec(10, 1.5, 1.25, 1.1, 2.0, 1.0, 5000)

	if spec.TotalMinutes != 41 {
		t.Errorf("TotalMinutes = %d, want 41", spec.TotalMinutes)
	}
	if spec.FineAmount != 5000 {
		t.Errorf("FineAmount = %d, want 5000", spec.FineAmount)
	}
}

func TestNewSpecZeroMultipliersTreatedAsOne(t *testing.T) {
	spec := NewSpec(30, 0, 0, 0, 0, 0, 0)

	if spec.TotalMinutes != 30 {
		t.Errorf("TotalMinutes = %d, want 30 when all multipliers are unset", spec.TotalMinutes)
	}
	if spec.SeverityMultiplier != 1.0 || spec.GlobalMultiplier != 1.0 {
		t.Error("Zero multipliers should be normalized to 1.0")
	}
}

func TestNewSpecNeverNegative(t *testing.T) {
	spec := NewSpec(-10, 1.0, 1.0, 1.0, 1.0, 1.0, 0)
	if spec.TotalMinutes != 0 {
		t.Errorf("TotalMinutes = %d, want 0 for negative base", spec.TotalMinutes)
	}
}

func TestFormatMinutes(t *testing.T) {
	cases := []struct {
		minutes int
		want    string
	}{
		{0, "0m"},
		{-5, "0m"},
		{45, "45m"},
		{60, "1h 00m"},
		{125, "2h 05m"},
	}

	for _, c := range cases {
		if got := FormatMinutes(c.minutes); got != c.want {
			t.Errorf("FormatMinutes(%d) = %q, want %q", c.minutes, got, c.want)
		}
	}
}
