package detection

import (
	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
	"github.com/atlas-desktop/smc-scanner/internal/primitives"
)

// narrative computes the Layer-1 narrative bias: 4h structure, falling back
// to 1h (quality forced WEAK) when 4h is NEUTRAL (spec §4.2 Layer 1).
func narrative(b Bundle, snap params.Snapshot) domain.StructureState {
	lookback := snap.Int("swing_lookback")

	if len(b.Frame4h) > 0 {
		h4, l4 := primitives.Swings(b.Frame4h, lookback)
		st4 := primitives.Structure(h4, l4)
		if st4.Bias != domain.BiasNeutral {
			return st4
		}
	}

	if len(b.Frame1h) > 0 {
		h1, l1 := primitives.Swings(b.Frame1h, lookback)
		st1 := primitives.Structure(h1, l1)
		if st1.Bias != domain.BiasNeutral {
			st1.Quality = domain.QualityWeak
			return st1
		}
	}

	return domain.StructureState{Bias: domain.BiasNeutral, Quality: domain.QualityNeutral}
}
