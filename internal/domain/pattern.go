package domain

// Pattern is an externally detected chart signal supplying the entry, stop,
// and target levels for a new position. It is produced by the detector and
// consumed read-only; the engine never second-guesses its levels unless
// level validation is explicitly enabled.
type Pattern struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stopLoss"`
	Targets    []float64 `json:"targets"`
	Type       string    `json:"type"`
	Timeframe  string    `json:"timeframe"`
	Confidence float64   `json:"confidence"`
}

// Target returns the first explicit take-profit level, or 0 when the
// pattern supplies none.
func (p Pattern) Target() float64 {
	if len(p.Targets) == 0 {
		return 0
	}
	return p.Targets[0]
}
