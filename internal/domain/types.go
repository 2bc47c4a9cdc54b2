// Package domain holds the structural and persisted record types that flow
// through the Smart Money Concepts detection pipeline: swing points, structure
// state, order blocks, fair-value gaps, liquidity pools, points of interest,
// triggers, and the persisted Signal/WatchlistEntry records.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SwingKind distinguishes a swing high from a swing low.
type SwingKind string

const (
	SwingHigh SwingKind = "HIGH"
	SwingLow  SwingKind = "LOW"
)

// Fractal distinguishes a dominant (major) swing from a 3-bar internal fallback.
type Fractal string

const (
	FractalMajor    Fractal = "MAJOR"
	FractalInternal Fractal = "INTERNAL"
)

// SwingPoint is a local extremum on a frame.
type SwingPoint struct {
	Index   int
	Price   decimal.Decimal
	Kind    SwingKind
	Fractal Fractal
}

// Bias is the narrative's directional judgment.
type Bias string

const (
	BiasLong    Bias = "LONG"
	BiasShort   Bias = "SHORT"
	BiasNeutral Bias = "NEUTRAL"
)

// Quality grades how decisively structure supports a bias.
type Quality string

const (
	QualityStrong  Quality = "STRONG"
	QualityWeak    Quality = "WEAK"
	QualityNeutral Quality = "NEUTRAL"
)

// StructureState is derived from the last <=8 swings of a frame.
type StructureState struct {
	Bias          Bias
	Quality       Quality
	CHoCH         bool
	LastBOSPrice  decimal.Decimal
	LastSwingHigh decimal.Decimal
	LastSwingLow  decimal.Decimal
}

// OBKind distinguishes a bullish from a bearish order block.
type OBKind string

const (
	OBBullish OBKind = "BULLISH"
	OBBearish OBKind = "BEARISH"
)

// OrderBlock is the last counter-trend candle preceding a displacement that
// broke its extreme.
type OrderBlock struct {
	Index     int
	High      decimal.Decimal
	Low       decimal.Decimal
	CE        decimal.Decimal // midpoint
	Kind      OBKind
	Age       int
	Mitigated bool
	Strength  decimal.Decimal // body ratio of the OB candle
}

// FVGMitigation tracks how much of a fair-value gap has been revisited.
type FVGMitigation string

const (
	FVGFresh   FVGMitigation = "FRESH"
	FVGPartial FVGMitigation = "PARTIAL"
	FVGFull    FVGMitigation = "FULL"
)

// FairValueGap is a three-candle imbalance.
type FairValueGap struct {
	Index      int
	High       decimal.Decimal
	Low        decimal.Decimal
	CE         decimal.Decimal
	Kind       OBKind
	Age        int
	Mitigation FVGMitigation
	SizePct    decimal.Decimal
}

// LiquiditySide is which side of price a liquidity pool rests on.
type LiquiditySide string

const (
	LiquidityBSL LiquiditySide = "BSL" // buy-side, above price
	LiquiditySSL LiquiditySide = "SSL" // sell-side, below price
)

// LiquidityKind distinguishes equal-level clusters from single swing extremes.
type LiquidityKind string

const (
	LiquidityEQH       LiquidityKind = "EQH"
	LiquidityEQL       LiquidityKind = "EQL"
	LiquiditySwingHigh LiquidityKind = "SWING_HIGH"
	LiquiditySwingLow  LiquidityKind = "SWING_LOW"
)

// LiquidityPool is a stop-cluster level above or below price.
type LiquidityPool struct {
	Price    decimal.Decimal
	Side     LiquiditySide
	Kind     LiquidityKind
	Strength int
	Swept    bool
}

// PDZone is a premium/discount zone classification.
type PDZone string

const (
	PDDeepDiscount PDZone = "DEEP_DISCOUNT"
	PDDiscount     PDZone = "DISCOUNT"
	PDNeutral      PDZone = "NEUTRAL"
	PDPremium      PDZone = "PREMIUM"
	PDDeepPremium  PDZone = "DEEP_PREMIUM"
)

// Obstacle is an opposing zone or round-number level sitting between entry and TP.
type Obstacle struct {
	Price       decimal.Decimal
	Kind        string // "OB", "FVG", "ROUND_NUMBER"
	DistancePct decimal.Decimal
}

// POI is a candidate entry region: the intersection of overlapping OBs/FVGs
// plus any liquidity pool falling inside it.
type POI struct {
	Bias                Bias
	Entry               decimal.Decimal
	SL                  decimal.Decimal
	TP                  decimal.Decimal
	RR                  decimal.Decimal
	ZoneHigh            decimal.Decimal
	ZoneLow             decimal.Decimal
	ConfluenceCount     int
	ConfluenceSources   []string
	InCorrectZone       bool
	InOTE               bool
	DistanceFromPricePct decimal.Decimal
	Obstacles           []Obstacle
	HasObstacle         bool
	PDZone              PDZone
}

// TriggerType names which trigger detector fired.
type TriggerType string

const (
	TriggerSweepRejection TriggerType = "SWEEP_REJECTION"
	TriggerMSS            TriggerType = "MSS"
	TriggerDisplacement   TriggerType = "DISPLACEMENT"
)

// TriggerQuality grades a fired trigger.
type TriggerQuality string

const (
	QualityAPlus  TriggerQuality = "A+"
	QualityA      TriggerQuality = "A"
	QualityB      TriggerQuality = "B"
	QualityC      TriggerQuality = "C"
	QualitySniper TriggerQuality = "SNIPER"
)

// Trigger is an instantaneous observation that validates a POI for immediate entry.
type Trigger struct {
	Type       TriggerType
	Direction  Bias
	Entry      decimal.Decimal
	SL         decimal.Decimal
	TP         decimal.Decimal
	RR         decimal.Decimal
	Quality    TriggerQuality
	Components []string
	POI        POI
	Timeframe  string
}

// SignalStatus is the lifecycle status of a persisted Signal.
type SignalStatus string

const (
	SignalActive    SignalStatus = "ACTIVE"
	SignalWon       SignalStatus = "WON"
	SignalLost      SignalStatus = "LOST"
	SignalCancelled SignalStatus = "CANCELLED"
)

// EntryMode is always MARKET in the v4 engine (no LIMIT waiting state).
const EntryModeMarket = "MARKET"

// Signal is the persisted record created when a Trigger clears the Trade
// Lifecycle Manager's entry gates.
type Signal struct {
	ID               string
	Symbol           string
	Direction        Bias
	EntryPrice       decimal.Decimal
	StopLoss         decimal.Decimal
	// InitialStopLoss is the stop-loss recorded at entry, before any
	// breakeven/trailing adjustment. It never changes after creation; the
	// lifecycle manager does not read it (profit stage is derived from
	// EntryPrice, TakeProfit and the current price).
	InitialStopLoss  decimal.Decimal
	TakeProfit       decimal.Decimal
	Status           SignalStatus
	EntryMode        string
	Confidence       decimal.Decimal
	ConfluenceScore  decimal.Decimal
	Components       []string
	HTFBias          Bias
	RRRatio          decimal.Decimal
	Timeframe        string
	EntryTime        time.Time
	CloseTime        *time.Time
	ClosePrice       decimal.Decimal
	PnLPct           decimal.Decimal
	Notes            string
}

// WatchlistStatus is the lifecycle status of a WatchlistEntry.
type WatchlistStatus string

const (
	WatchlistWatching WatchlistStatus = "WATCHING"
	WatchlistPromoted WatchlistStatus = "PROMOTED"
	WatchlistExpired  WatchlistStatus = "EXPIRED"
)

// StoredContext is the first-class typed replacement for the source's JSON
// blob stuffed into a repurposed "components" column (spec §9 Design Notes).
type StoredContext struct {
	SchemaVersion int
	Narrative     StructureState
	POI           POI
}

// WatchlistEntry is a bounded-duration observation buffer entry for a setup
// that formed but has not yet triggered.
type WatchlistEntry struct {
	ID                string
	Symbol            string
	Direction         Bias
	PotentialEntry    decimal.Decimal
	PotentialSL       decimal.Decimal
	PotentialTP       decimal.Decimal
	WatchReason       string
	CandlesWatched    int
	MaxWatchCandles   int
	Last5mCandleTS    time.Time
	Status            WatchlistStatus
	ExpireReason      string
	Context           StoredContext
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ParameterType distinguishes integer-typed from fractional-typed parameters.
type ParameterType string

const (
	ParamInt   ParameterType = "int"
	ParamFloat ParameterType = "float"
)

// ParameterEntry is a durable name->value mapping with defaults and bounds.
type ParameterEntry struct {
	Name         string
	CurrentValue decimal.Decimal
	DefaultValue decimal.Decimal
	Min          decimal.Decimal
	Max          decimal.Decimal
	Type         ParameterType
}

// OptimisationLogEntry is an append-only record of a parameter change made by
// the Self-Optimiser.
type OptimisationLogEntry struct {
	ParamName     string
	OldValue      decimal.Decimal
	NewValue      decimal.Decimal
	Reason        string
	WRBefore      decimal.Decimal
	WRAfter       decimal.Decimal
	TradesAnalyzed int
	Timestamp     time.Time
}

// Action is the tagged sum type the Detection Engine emits: exactly one of
// None, Watch, or Signal per call (spec §9 Design Notes: "the one-of Signal |
// Watch | None output becomes a tagged sum type with action as the
// discriminant").
type ActionKind string

const (
	ActionNone   ActionKind = "NONE"
	ActionWatch  ActionKind = "WATCH"
	ActionSignal ActionKind = "SIGNAL"
)

// WatchEmission carries the fields populated when Kind == ActionWatch.
type WatchEmission struct {
	Symbol    string
	Direction Bias
	Entry     decimal.Decimal
	SL        decimal.Decimal
	TP        decimal.Decimal
	RR        decimal.Decimal
	Narrative StructureState
	POI       POI
	Reason    string
}

// SignalEmission carries the fields populated when Kind == ActionSignal.
type SignalEmission struct {
	Symbol      string
	Direction   Bias
	Entry       decimal.Decimal
	SL          decimal.Decimal
	TP          decimal.Decimal
	RR          decimal.Decimal
	TriggerType TriggerType
	Quality     TriggerQuality
	Components  []string
	Narrative   StructureState
	POI         POI
	ATR         decimal.Decimal
	EntryMode   string
	Timeframe   string
}

// Action is returned by exactly one call into the Detection Engine per symbol
// per tick. At most one of Watch/Signal is non-nil, governed by Kind (both
// are nil for ActionNone).
type Action struct {
	Kind   ActionKind
	Watch  *WatchEmission
	Signal *SignalEmission
}

// NoneAction is the canonical "no signal" emission.
func NoneAction() Action { return Action{Kind: ActionNone} }
