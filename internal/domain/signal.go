package domain

// SignalLimit mirrors the close thresholds attached to a signal's settings.
type SignalLimit struct {
	Profit float64 `json:"profit"`
	Dump   float64 `json:"dump"`
	Loss   float64 `json:"loss"`
	Time   int     `json:"time"`
}

// SignalSettings carries the per-signal trade parameters: close limits and
// the quote asset → notional map that drives the fanout.
type SignalSettings struct {
	Limit SignalLimit        `json:"limit"`
	Token map[string]float64 `json:"token"`
}

// Signal is the buy recommendation itself.
type Signal struct {
	ID         int64    `json:"id"`
	Token      string   `json:"token"`
	Exchange   Exchange `json:"exchange"`
	Strength   string   `json:"strength"`
	BasicToken string   `json:"basicToken,omitempty"`
}

// SignalEnvelope is the full payload pulled from the coordination service.
// An envelope with nil Settings means no new signal this tick.
type SignalEnvelope struct {
	Settings *SignalSettings `json:"settings,omitempty"`
	Signal   Signal          `json:"signal"`
}
