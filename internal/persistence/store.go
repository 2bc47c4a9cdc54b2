// Package persistence implements the Persistence component (C3): a
// JSON-file-backed store for signals, watchlist entries, bot parameters, and
// the append-only optimisation log, grounded on the teacher's
// internal/data/store.go (mutex-guarded in-memory cache, one JSON file per
// logical table, load-on-start/save-on-write).
//
// Store satisfies every consumer-side interface the rest of the repo needs:
// params.PersistAdapter, lifecycle.Store, and optimiser.Store, plus the full
// query surface spec.md §6 names.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
)

// Store is the JSON-file-backed reference implementation of Persistence.
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string

	signals           map[string]*domain.Signal
	watchlist         map[string]*domain.WatchlistEntry
	parameters        map[string]decimal.Decimal
	parameterDefaults map[string]decimal.Decimal
	optimisationLog   []domain.OptimisationLogEntry
}

// NewStore creates dataDir if absent and loads whichever of its JSON files
// exist into memory; missing files start empty and are written on first save.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	s := &Store{
		logger:            logger.Named("persistence"),
		dataDir:           dataDir,
		signals:           make(map[string]*domain.Signal),
		watchlist:         make(map[string]*domain.WatchlistEntry),
		parameters:        make(map[string]decimal.Decimal),
		parameterDefaults: make(map[string]decimal.Decimal),
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create persistence data directory: %w", err)
	}

	if err := s.loadJSON("signals.json", &s.signals); err != nil {
		return nil, fmt.Errorf("failed to load signals: %w", err)
	}
	if err := s.loadJSON("watchlist.json", &s.watchlist); err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}
	var params []storedParameter
	if err := s.loadJSON("parameters.json", &params); err != nil {
		return nil, fmt.Errorf("failed to load parameters: %w", err)
	}
	for _, p := range params {
		s.parameters[p.Name] = p.Value
		s.parameterDefaults[p.Name] = p.Default
	}
	if err := s.loadJSON("optimisation_log.json", &s.optimisationLog); err != nil {
		return nil, fmt.Errorf("failed to load optimisation log: %w", err)
	}

	return s, nil
}

type storedParameter struct {
	Name    string          `json:"name"`
	Value   decimal.Decimal `json:"value"`
	Default decimal.Decimal `json:"default"`
}

func (s *Store) loadJSON(filename string, out any) error {
	path := filepath.Join(s.dataDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (s *Store) saveJSON(filename string, in any) error {
	path := filepath.Join(s.dataDir, filename)
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func newID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
