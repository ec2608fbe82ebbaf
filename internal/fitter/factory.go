package fitter

import (
	"fmt"

	"arpa-go/internal/arpa"
	"arpa-go/internal/config"
)

// NewFitterFromConfig creates a Fitter implementation based on the fitter config type.
func NewFitterFromConfig(cfg config.FitterConfig) (arpa.Fitter, error) {
	switch cfg.Type {
	case "", "psrchive":
		return NewPsrchiveFitter(cfg.PsrchiveDir, cfg.TempDir), nil
	default:
		return nil, fmt.Errorf("unknown fitter type: %s", cfg.Type)
	}
}
