package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"luckydraw/internal/models"
)

// DefaultFallbackProbability is returned for any input that cannot be read as a number.
const DefaultFallbackProbability = 0.01

// numberPattern matches a leading decimal number the way a lenient
// form field reader would: optional sign, digits with an optional
// fraction, optional exponent, or Infinity.
var numberPattern = regexp.MustCompile(`^[+-]?(?:Infinity|(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)`)

// parseNumberPrefix reads the longest numeric prefix of s, ignoring
// leading whitespace. Trailing garbage is allowed.
func parseNumberPrefix(s string) (float64, bool) {
	m := numberPattern.FindString(strings.TrimLeft(s, " \t\r\n"))
	if m == "" {
		return 0, false
	}
	return parseNumberLiteral(m)
}

// parseNumberExact accepts s only when the whole string is a number.
func parseNumberExact(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" || len(m) != len(s) {
		return 0, false
	}
	return parseNumberLiteral(m)
}

func parseNumberLiteral(m string) (float64, bool) {
	switch strings.TrimLeft(m, "+-") {
	case "Infinity":
		if strings.HasPrefix(m, "-") {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil && !isRangeErr(err) {
		return 0, false
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ParseFloat reports out-of-range literals with ±Inf and ErrRange; keep the infinity.
func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// ParseProbability turns user-entered text into a fraction. Accepted
// shapes are "1%", "1/50", "10" (read as 10%) and "0.05". Anything
// unreadable yields DefaultFallbackProbability; it never fails.
func ParseProbability(input string) float64 {
	s := strings.TrimSpace(input)

	if strings.Contains(s, "%") {
		if v, ok := parseNumberPrefix(strings.Replace(s, "%", "", 1)); ok {
			return v / 100
		}
	}

	if strings.Contains(s, "/") {
		parts := strings.Split(s, "/")
		if len(parts) == 2 {
			num, okNum := parseNumberPrefix(parts[0])
			den, okDen := parseNumberPrefix(parts[1])
			if okNum && okDen && den != 0 {
				return num / den
			}
		}
	}

	if v, ok := parseNumberExact(s); ok {
		if v > 1 {
			return v / 100
		}
		return v
	}

	return DefaultFallbackProbability
}

// FormatProbability renders p for the settings form. Values under 0.5
// are shown as a rounded whole percentage, anything else as a decimal.
// It is not a strict inverse of ParseProbability.
func FormatProbability(p float64) string {
	if p < 0.5 {
		return strconv.FormatFloat(math.Round(p*100), 'f', 0, 64) + "%"
	}
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// FormatForEdit renders the probability of every configured tier.
// Levels without a saved value are shown as 0%.
func FormatForEdit(tiers []models.PrizeTier, probs models.Probabilities) map[int]string {
	out := make(map[int]string, len(tiers))
	for _, t := range tiers {
		out[t.Level] = FormatProbability(probs[t.Level])
	}
	return out
}

// ParseEdited builds a complete probability map from the edited strings.
// A tier with no submitted string gets the fallback value.
func ParseEdited(tiers []models.PrizeTier, inputs map[int]string) models.Probabilities {
	out := make(models.Probabilities, len(tiers))
	for _, t := range tiers {
		out[t.Level] = ParseProbability(inputs[t.Level])
	}
	return out
}

// DefaultsFor returns the starting probabilities for a prize table: the
// reference value for levels that have one, the fallback for other
// levels, then the table's overrides as typed by an operator. Only the
// configured levels are included; overrides for other levels are ignored.
func DefaultsFor(tiers []models.PrizeTier, overrides map[int]string) models.Probabilities {
	reference := models.DefaultProbabilities()
	out := make(models.Probabilities, len(tiers))
	for _, t := range tiers {
		p, ok := reference[t.Level]
		if !ok {
			p = DefaultFallbackProbability
		}
		if text, ok := overrides[t.Level]; ok {
			p = ParseProbability(text)
		}
		out[t.Level] = p
	}
	return out
}
