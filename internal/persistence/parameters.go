package persistence

import "github.com/shopspring/decimal"

// GetAllBotParams satisfies params.PersistAdapter: the full set of
// previously-saved parameter values, keyed by name.
func (s *Store) GetAllBotParams() (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(s.parameters))
	for name, value := range s.parameters {
		out[name] = value
	}
	return out, nil
}

// SaveBotParam satisfies params.PersistAdapter: persists a parameter's
// current value alongside its default, so a later process restart can tell a
// deliberately-tuned value from one it should reset to default.
func (s *Store) SaveBotParam(name string, value, defaultValue decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.parameters[name] = value
	s.parameterDefaults[name] = defaultValue

	out := make([]storedParameter, 0, len(s.parameters))
	for n, v := range s.parameters {
		out = append(out, storedParameter{Name: n, Value: v, Default: s.parameterDefaults[n]})
	}
	return s.saveJSON("parameters.json", out)
}

// GetBotParam returns a single parameter's value, falling back to def if it
// has never been saved.
func (s *Store) GetBotParam(name string, def decimal.Decimal) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.parameters[name]; ok {
		return v, nil
	}
	return def, nil
}
