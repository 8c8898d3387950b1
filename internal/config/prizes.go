package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"luckydraw/internal/models"
)

// PrizeTable is the YAML prize configuration. Probabilities are kept as
// the text an operator would type ("1%", "1/50", "0.1").
type PrizeTable struct {
	Prizes        []models.PrizeTier `yaml:"prizes"`
	Probabilities map[int]string     `yaml:"probabilities,omitempty"`
}

// LoadPrizeTable reads a prize table from path. An empty path or a missing
// file yields the reference tiers with no probability overrides.
func LoadPrizeTable(path string) (PrizeTable, error) {
	def := PrizeTable{Prizes: models.DefaultPrizeTiers()}
	if path == "" {
		return def, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return def, nil
		}
		return PrizeTable{}, fmt.Errorf("read prize table: %w", err)
	}
	var table PrizeTable
	if err := yaml.Unmarshal(b, &table); err != nil {
		return PrizeTable{}, fmt.Errorf("decode prize table: %w", err)
	}
	if len(table.Prizes) == 0 {
		table.Prizes = def.Prizes
	}
	if err := ValidatePrizeTable(table); err != nil {
		return PrizeTable{}, err
	}
	return table, nil
}

// ValidatePrizeTable checks that tiers are well formed and that every
// probability refers to a configured level.
func ValidatePrizeTable(table PrizeTable) error {
	var errs []string
	seen := make(map[int]bool, len(table.Prizes))
	for i, p := range table.Prizes {
		if p.Level < 1 {
			errs = append(errs, fmt.Sprintf("prizes[%d].level must be >= 1", i))
		}
		if seen[p.Level] {
			errs = append(errs, fmt.Sprintf("prizes[%d].level %d is duplicated", i, p.Level))
		}
		seen[p.Level] = true
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Sprintf("prizes[%d].name is required", i))
		}
		if p.Count < 0 {
			errs = append(errs, fmt.Sprintf("prizes[%d].count must be >= 0", i))
		}
	}
	for level := range table.Probabilities {
		if !seen[level] {
			errs = append(errs, fmt.Sprintf("probabilities.%d has no matching prize level", level))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("prize table validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
