// Package detection implements the Detection Engine (C5): a three-layer
// pipeline (Narrative -> POI -> Trigger) composing the C4 Structural
// Primitives into exactly one emission per symbol per call (spec §4.2).
package detection

import (
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

// Bundle is the multi-timeframe frame set the engine consumes. Frame15m is
// required; Frame1h/Frame4h feed the narrative layer; Frame5m is optional and
// only used by the lightweight re-check path's sniper variant.
type Bundle struct {
	Frame5m  []types.OHLCV
	Frame15m []types.OHLCV
	Frame1h  []types.OHLCV
	Frame4h  []types.OHLCV
}
