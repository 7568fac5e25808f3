package config

import (
	"fmt"

	"github.com/sumfields/sumfields/internal/registry"
)

// Registry assembles the active field set: the built-in definitions, any
// extension definitions layered on top, restricted to the active fields of
// enabled components and localized.
func (s SumfieldsConfig) Registry() (*registry.Registry, error) {
	reg, err := s.AllDefinitions()
	if err != nil {
		return nil, err
	}

	active, err := reg.Filter(s.ActiveFields, s.EnabledComponents)
	if err != nil {
		return nil, fmt.Errorf("sumfields.active_fields: %w", err)
	}
	return active.Localize(s.Locale), nil
}

// AllDefinitions returns every known definition before filtering
func (s SumfieldsConfig) AllDefinitions() (*registry.Registry, error) {
	reg := registry.MustLoad()

	if s.DefinitionsFile != "" {
		ext, err := registry.LoadFile(s.DefinitionsFile)
		if err != nil {
			return nil, err
		}
		if reg, err = reg.Merge(ext); err != nil {
			return nil, fmt.Errorf("%s: %w", s.DefinitionsFile, err)
		}
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}
