package persistence

import (
	"github.com/atlas-desktop/smc-scanner/internal/lifecycle"
	"github.com/atlas-desktop/smc-scanner/internal/optimiser"
	"github.com/atlas-desktop/smc-scanner/internal/params"
)

var (
	_ params.PersistAdapter = (*Store)(nil)
	_ lifecycle.Store       = (*Store)(nil)
	_ optimiser.Store       = (*Store)(nil)
)
