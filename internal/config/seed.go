package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

type seedProduct struct {
	ID       string `mapstructure:"id"`
	OwnerID  string `mapstructure:"owner_id"`
	Quantity int    `mapstructure:"quantity"`
	Status   string `mapstructure:"status"`
}

type seedFile struct {
	Products []seedProduct `mapstructure:"products"`
}

// LoadSeed reads the product fixture used by the memory store. Any format
// viper understands works (yaml, json, toml).
func LoadSeed(file string) ([]trade.Product, error) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read seed %s: %w", file, err)
	}

	var sf seedFile
	if err := v.Unmarshal(&sf); err != nil {
		return nil, fmt.Errorf("failed to decode seed %s: %w", file, err)
	}
	if len(sf.Products) == 0 {
		return nil, fmt.Errorf("seed %s has no products", file)
	}

	seen := make(map[string]bool, len(sf.Products))
	out := make([]trade.Product, 0, len(sf.Products))
	for i, p := range sf.Products {
		if p.ID == "" || p.OwnerID == "" {
			return nil, fmt.Errorf("seed product #%d: id and owner_id are required", i+1)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("seed product %s listed twice", p.ID)
		}
		seen[p.ID] = true
		if p.Quantity <= 0 {
			p.Quantity = 1
		}
		if p.Status == "" {
			p.Status = "active"
		}
		out = append(out, trade.Product{ID: p.ID, OwnerID: p.OwnerID, Quantity: p.Quantity, Status: p.Status})
	}
	return out, nil
}
