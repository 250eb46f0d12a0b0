package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. CALMSESSION_ADS_FILL_RATE.
const EnvPrefix = "CALMSESSION_"

// ApplyEnv overrides fields of cfg from the environment. Unset variables leave
// the field unchanged.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
