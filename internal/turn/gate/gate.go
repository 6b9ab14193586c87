package gate

import "time"

type Decision int

const (
	Continue Decision = iota
	Escalate
)

func (d Decision) String() string {
	if d == Escalate {
		return "escalate"
	}
	return "continue"
}

// SilenceGate is the cheap per-frame rule deciding whether accumulated
// silence warrants the expensive semantic judge. It latches after firing so
// one silence episode escalates at most once; Reset re-arms it when speech
// resumes or a verdict calls for a retry.
type SilenceGate struct {
	threshold time.Duration
	latched   bool
}

func New(threshold time.Duration) *SilenceGate {
	return &SilenceGate{threshold: threshold}
}

func (g *SilenceGate) Evaluate(silence time.Duration) Decision {
	if g.latched {
		return Continue
	}
	if silence >= g.threshold {
		g.latched = true
		return Escalate
	}
	return Continue
}

func (g *SilenceGate) Reset() {
	g.latched = false
}

func (g *SilenceGate) Threshold() time.Duration {
	return g.threshold
}
