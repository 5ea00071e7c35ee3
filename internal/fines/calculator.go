package fines

import (
	"math"

	"github.com/custodia-rp/custody-server/internal/domain/offense"
	"github.com/custodia-rp/custody-server/internal/platform/logger"
)

// Calculator turns resolved offense counts into a total fine using the
// offense tables and the repeat-offender multiplier.
type Calculator struct {
	resolver *Resolver
	logger   *logger.Logger
}

// NewCalculator creates a calculator over the given fallback counter source.
func NewCalculator(raw RawCounterProvider, log *logger.Logger) *Calculator {
	return &Calculator{
		resolver: NewResolver(raw, log),
		logger:   log,
	}
}

// RepeatMultiplier returns the repeat-offender factor for a ledger's total
// offense-instance count: 1→1.0, 2→1.25, 3→1.5, 4 or more→2.0.
func RepeatMultiplier(instanceCount int) float64 {
	switch {
	case instanceCount <= 1:
		return 1.0
	case instanceCount == 2:
		return 1.25
	case instanceCount == 3:
		return 1.5
	default:
		return 2.0
	}
}

// CalculateTotalFine resolves the subject's offenses and prices them.
//
// Homicide records are priced exclusively through the victim-type table and
// never touch the general fine table. The evaded-arrest addend applies once,
// only when the raw counter was the data source. The repeat-offender
// multiplier is applied whenever a ledger handle is available, even if the
// raw counter supplied the counts; with no handle the step is skipped
// entirely rather than applied as 1.0.
func (c *Calculator) CalculateTotalFine(subjectID string, ledger *Ledger) int64 {
	if subjectID == "" {
		c.logger.Warn("CalculateTotalFine called with blank subject, returning 0")
		return 0
	}

	res := c.resolver.Resolve(subjectID, ledger)
	if res.Empty {
		return 0
	}

	var total int64
	for _, rec := range res.Records {
		if rec.Kind != offense.KindHomicide && !offense.Known(rec.Kind) {
			c.logger.Warnf("Unknown offense kind %q for subject %s, using default fine", rec.Kind, subjectID)
		}
		total += offense.BaseFine(rec.Kind, rec.VictimType) * int64(rec.Count)
	}

	if res.EvadedArrest {
		total += offense.EvadedArrestFine
	}

	if ledger != nil {
		mult := RepeatMultiplier(ledger.InstanceCount())
		total = int64(math.Round(float64(total) * mult))
	}

	return total
}

// GetBaseFine is a pure lookup of the per-instance fine for a kind. Homicide
// with a supplied victim type reads the homicide table; everything else reads
// the general table with the default substituted for unknown kinds.
func (c *Calculator) GetBaseFine(kind offense.Kind, victim offense.VictimType) int64 {
	return offense.BaseFine(kind, victim)
}
