package types

// Signal is a strategy decision for a single bar.
type Signal string

const (
	// SignalNone means the strategy expressed no opinion; treated as hold.
	SignalNone Signal = ""
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// PositionState is the engine's position as seen by the strategy callback.
type PositionState string

const (
	PositionNone PositionState = "none"
	PositionLong PositionState = "long"
)

// Side is the direction of a trade. The engine only ever opens long positions
// in the current scope; short exists for forward compatibility of the ledger.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)
