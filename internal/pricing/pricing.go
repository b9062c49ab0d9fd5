// Package pricing computes the minimum viable price for a job from the
// atelier's economics: labor, overhead, fixed fees and tax.
package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the shop economics. Rates are UAH; tax_rate is fractional
// (0.05 for 5%). Services maps a human-readable service name to its base
// complexity in minutes.
type Config struct {
	HourlyLaborRate float64        `toml:"hourly_labor_rate"`
	OverheadPerHour float64        `toml:"overhead_per_hour"`
	DepreciationFee float64        `toml:"depreciation_fee"`
	ConsumablesFee  float64        `toml:"consumables_fee"`
	TaxRate         float64        `toml:"tax_rate"`
	Services        map[string]int `toml:"services"`
}

func DefaultConfig() Config {
	return Config{
		HourlyLaborRate: 156.0,
		OverheadPerHour: 31.0,
		DepreciationFee: 10.0,
		ConsumablesFee:  15.0,
		TaxRate:         0.05,
		Services: map[string]int{
			"Підшити штани":            30,
			"Заміна блискавки (куртка)": 60,
			"Простий ремонт/латка":     20,
		},
	}
}

// LoadConfig reads economics from a TOML file. An empty path returns the
// defaults; a file only overrides what it sets.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode pricing config: %w", err)
	}
	if len(cfg.Services) == 0 {
		cfg.Services = DefaultConfig().Services
	}
	return cfg, nil
}

// Breakdown is a rounded integer price breakdown in UAH.
type Breakdown struct {
	FinalPrice int
	Labor      int
	Overhead   int
	Tax        int
}

// MinPrice calculates the minimum viable price for baseMinutes of work.
func (c Config) MinPrice(baseMinutes int) (Breakdown, error) {
	if baseMinutes <= 0 {
		return Breakdown{}, fmt.Errorf("base minutes must be > 0, got %d", baseMinutes)
	}

	hours := float64(baseMinutes) / 60
	labor := hours * c.HourlyLaborRate
	overhead := hours * c.OverheadPerHour
	subtotal := labor + overhead + c.DepreciationFee + c.ConsumablesFee
	final := subtotal / (1 - c.TaxRate)

	return Breakdown{
		FinalPrice: int(math.Round(final)),
		Labor:      int(math.Round(labor)),
		Overhead:   int(math.Round(overhead)),
		Tax:        int(math.Round(final * c.TaxRate)),
	}, nil
}

// FormatPriceList renders the customer-facing price list, one line per
// service, alphabetical for a stable layout.
func (c Config) FormatPriceList() string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("💰 **Наші ціни:**\n")
	for _, name := range names {
		bd, err := c.MinPrice(c.Services[name])
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "• %s — від %d грн\n", name, bd.FinalPrice)
	}
	b.WriteString("\n_Точну вартість майстер підтвердить після огляду речі._")
	return b.String()
}
