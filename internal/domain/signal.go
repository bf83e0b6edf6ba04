package domain

// Signal opaque advice from an external strategy/indicator layer.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
	SignalSkip Signal = "SKIP"
)
