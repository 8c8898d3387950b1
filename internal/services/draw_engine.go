package services

import (
	"fmt"
	"sort"

	"luckydraw/internal/models"
)

// DrawEngine owns the prize table and decides draws. It holds no mutable
// state: winners and probabilities are passed in on every call.
type DrawEngine struct {
	tiers []models.PrizeTier // ascending by level
	rng   RandomSource
}

// NewDrawEngine creates an engine for the given tiers. A nil rng means DefaultRNG.
func NewDrawEngine(tiers []models.PrizeTier, rng RandomSource) *DrawEngine {
	sorted := append([]models.PrizeTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	if rng == nil {
		rng = DefaultRNG()
	}
	return &DrawEngine{tiers: sorted, rng: rng}
}

// Tiers returns a copy of the prize table in level order.
func (e *DrawEngine) Tiers() []models.PrizeTier {
	return append([]models.PrizeTier(nil), e.tiers...)
}

// Tier looks up a tier by level.
func (e *DrawEngine) Tier(level int) (models.PrizeTier, bool) {
	for _, t := range e.tiers {
		if t.Level == level {
			return t, true
		}
	}
	return models.PrizeTier{}, false
}

// Remaining is the tier's total count minus the winners recorded for it,
// never below zero. Unknown levels have nothing remaining.
func (e *DrawEngine) Remaining(level int, winners []models.WinnerRecord) int {
	tier, ok := e.Tier(level)
	if !ok {
		return 0
	}
	won := 0
	for _, w := range winners {
		if w.Level == level {
			won++
		}
	}
	if left := tier.Count - won; left > 0 {
		return left
	}
	return 0
}

// HasAnyRemaining reports whether at least one tier still has stock.
func (e *DrawEngine) HasAnyRemaining(winners []models.WinnerRecord) bool {
	for _, t := range e.tiers {
		if e.Remaining(t.Level, winners) > 0 {
			return true
		}
	}
	return false
}

// TotalCount is the size of the whole prize pool.
func (e *DrawEngine) TotalCount() int {
	total := 0
	for _, t := range e.tiers {
		total += t.Count
	}
	return total
}

// TotalRemaining sums Remaining over every tier.
func (e *DrawEngine) TotalRemaining(winners []models.WinnerRecord) int {
	total := 0
	for _, t := range e.tiers {
		total += e.Remaining(t.Level, winners)
	}
	return total
}

// TotalProbability sums the probabilities of all configured tiers,
// sold out or not.
func (e *DrawEngine) TotalProbability(probs models.Probabilities) float64 {
	total := 0.0
	for _, t := range e.tiers {
		total += probs[t.Level]
	}
	return total
}

// Draw samples the engine's random source once and decides the result.
func (e *DrawEngine) Draw(probs models.Probabilities, winners []models.WinnerRecord) models.DrawResult {
	if !e.HasAnyRemaining(winners) {
		return lose(models.ReasonNoPrizesLeft)
	}
	return e.DrawWithSample(probs, winners, e.rng.Float64())
}

// DrawWithSample runs the cumulative probability walk for a given sample r.
//
// Available tiers are tested in ascending level order and the first one
// whose running sum exceeds r wins. Independently of the walk, r must
// also fall below the sum over all configured tiers, so the mass of a
// sold-out tier still produces misses.
func (e *DrawEngine) DrawWithSample(probs models.Probabilities, winners []models.WinnerRecord, r float64) models.DrawResult {
	if !e.HasAnyRemaining(winners) {
		return lose(models.ReasonNoPrizesLeft)
	}

	var selected *models.PrizeTier
	cumulative := 0.0
	for i := range e.tiers {
		t := e.tiers[i]
		if e.Remaining(t.Level, winners) <= 0 {
			continue
		}
		cumulative += probs[t.Level]
		if r < cumulative {
			selected = &t
			break
		}
	}

	if selected == nil || r >= e.TotalProbability(probs) {
		return lose(models.ReasonRandomMiss)
	}
	return models.DrawResult{Outcome: models.OutcomeWin, Tier: selected}
}

// CheckProbabilities lists configuration problems an operator should know
// about. The values are still used as given.
func (e *DrawEngine) CheckProbabilities(probs models.Probabilities) []string {
	var warnings []string
	for _, t := range e.tiers {
		p, ok := probs[t.Level]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("level %d has no probability, treated as 0", t.Level))
			continue
		}
		if p < 0 || p > 1 {
			warnings = append(warnings, fmt.Sprintf("level %d probability %g is outside [0,1]", t.Level, p))
		}
	}
	levels := make([]int, 0, len(probs))
	for level := range probs {
		if _, ok := e.Tier(level); !ok {
			levels = append(levels, level)
		}
	}
	sort.Ints(levels)
	for _, level := range levels {
		warnings = append(warnings, fmt.Sprintf("level %d is not a configured prize tier", level))
	}
	if total := e.TotalProbability(probs); total > 1 {
		warnings = append(warnings, fmt.Sprintf("total probability %.4f exceeds 1, every draw below it can win", total))
	}
	return warnings
}

func lose(reason models.LoseReason) models.DrawResult {
	return models.DrawResult{Outcome: models.OutcomeLose, Reason: reason}
}
