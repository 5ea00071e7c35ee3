// Package sentence defines the core domain entities for confinement periods.
// This package is PURE and must NOT import any infrastructure packages.
package sentence

import (
	"fmt"
	"math"
)

// Spec describes a fully-derived sentence. Read-only once produced.
type Spec struct {
	BaseMinutes        int     `json:"base_minutes"`
	SeverityMultiplier float64 `json:"severity_multiplier"`
	RepeatMultiplier   float64 `json:"repeat_multiplier"`
	WitnessMultiplier  float64 `json:"witness_multiplier"`
	ParoleMultiplier   float64 `json:"parole_multiplier"`
	GlobalMultiplier   float64 `json:"global_multiplier"`
	TotalMinutes       int     `json:"total_minutes"`
	FineAmount         int64   `json:"fine_amount"`
}

// NewSpec derives TotalMinutes by applying the multiplier chain to the base.
// Zero-valued multipliers are treated as 1.0 so a partially-filled spec never
// collapses the sentence to nothing.
func NewSpec(baseMinutes int, severity, repeat, witness, parole, global float64, fine int64) Spec {
	s := Spec{
		BaseMinutes:        baseMinutes,
		SeverityMultiplier: orOne(severity),
		RepeatMultiplier:   orOne(repeat),
		WitnessMultiplier:  orOne(witness),
		ParoleMultiplier:   orOne(parole),
		GlobalMultiplier:   orOne(global),
		FineAmount:         fine,
	}

	product := s.SeverityMultiplier * s.RepeatMultiplier * s.WitnessMultiplier * s.ParoleMultiplier * s.GlobalMultiplier
	s.TotalMinutes = int(math.Round(float64(baseMinutes) * product))
	if s.TotalMinutes < 0 {
		s.TotalMinutes = 0
	}
	return s
}

func orOne(m float64) float64 {
	if m == 0 {
		return 1.0
	}
	return m
}

// CompletedSnapshot records a finished or aborted sentence. It is retained
// until the consumer explicitly clears it.
type CompletedSnapshot struct {
	SubjectID       string `json:"subject_id"`
	OriginalMinutes int    `json:"original_minutes"`
	ServedMinutes   int    `json:"served_minutes"`
}

// FormatMinutes renders a remaining-time value for the presentation layer,
// e.g. "2h 05m" or "45m".
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
