package models

// PrizeTier represents a single ranked prize category in the lottery.
// Level 1 is the most prestigious tier; Count is the total quantity
// that can ever be awarded for this tier.
type PrizeTier struct {
	Level int    `json:"level" yaml:"level"`
	Name  string `json:"name" yaml:"name"`
	Icon  string `json:"icon" yaml:"icon"`
	Count int    `json:"count" yaml:"count"`
	Unit  string `json:"unit,omitempty" yaml:"unit,omitempty"` // measure word shown next to the remaining count
}

// Probabilities maps a tier level to its winning probability in [0, 1].
// It is always replaced as a whole, never patched.
type Probabilities map[int]float64

// Clone returns an independent copy of the map.
func (p Probabilities) Clone() Probabilities {
	out := make(Probabilities, len(p))
	for level, v := range p {
		out[level] = v
	}
	return out
}

// WinnerRecord stores one successful draw. The ordered list of records is
// the only persisted history of who won what.
type WinnerRecord struct {
	Level int    `json:"level"`
	Time  string `json:"time"`
}

// Outcome is the top-level result of a draw.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLose Outcome = "LOSE"
)

// LoseReason explains a LOSE outcome.
type LoseReason string

const (
	ReasonNoPrizesLeft LoseReason = "NO_PRIZES_LEFT"
	ReasonRandomMiss   LoseReason = "RANDOM_MISS"
)

// DrawResult is the transient outcome of a single draw.
type DrawResult struct {
	Outcome Outcome    `json:"outcome"`
	Tier    *PrizeTier `json:"tier,omitempty"`
	Reason  LoseReason `json:"reason,omitempty"`
}

// Win reports whether the draw awarded a tier.
func (r DrawResult) Win() bool {
	return r.Outcome == OutcomeWin && r.Tier != nil
}

// DefaultPrizeTiers is the reference prize pool (17 prizes in total).
func DefaultPrizeTiers() []PrizeTier {
	return []PrizeTier{
		{Level: 1, Name: "苹果手机", Icon: "📱", Count: 2, Unit: "台"},
		{Level: 2, Name: "自行车", Icon: "🚲", Count: 5, Unit: "辆"},
		{Level: 3, Name: "抱枕", Icon: "🧸", Count: 10, Unit: "个"},
	}
}

// DefaultProbabilities is used whenever no probabilities have been saved.
func DefaultProbabilities() Probabilities {
	return Probabilities{
		1: 0.01, // 1%
		2: 0.02, // 1/50
		3: 0.10, // 1/10
	}
}

// TierStatus is the per-tier view shown in the prize pool.
type TierStatus struct {
	PrizeTier
	Remaining   int     `json:"remaining"`
	Probability float64 `json:"probability"`
}

// LotteryStatus summarizes the pool for the status bar.
type LotteryStatus struct {
	Tiers            []TierStatus `json:"tiers"`
	TotalCount       int          `json:"totalCount"`
	TotalRemaining   int          `json:"totalRemaining"`
	Participants     int          `json:"participants"`
	TotalProbability float64      `json:"totalProbability"`
	Warnings         []string     `json:"warnings,omitempty"`
}
