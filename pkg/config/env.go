package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv overrides fields of target from their env-tagged variables.
// Unset variables leave the current value in place.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
