package monitor

const (
	// InitialCount is the failure allowance of a newly seen, unconfirmed display.
	InitialCount = 3
	// NormalCount is the failure allowance of a display that has succeeded.
	NormalCount = 5
)

// Controllability tracks whether an entity should be treated as controllable.
// The zero value is not ready; use NewControllability.
type Controllability struct {
	confidence int
	confirmed  bool
}

func NewControllability() Controllability {
	return Controllability{confidence: InitialCount}
}

// OnSuccess restores the allowance. It reports whether observers should be
// notified, which is when the allowance was at or below InitialCount.
func (c *Controllability) OnSuccess() bool {
	notify := false
	if c.confidence < NormalCount {
		notify = c.confidence <= InitialCount
		c.confidence = NormalCount
	}
	c.confirmed = true
	return notify
}

// OnFailure spends one unit of allowance. It reports true when the allowance
// has just run out.
func (c *Controllability) OnFailure() bool {
	if c.confidence == 0 {
		return false
	}
	c.confidence--
	return c.confidence == 0
}

// IsControllable applies the reachability short-circuit.
func (c Controllability) IsControllable(reachable bool) bool {
	return reachable && (c.confidence > 0 || c.confirmed)
}

// Healthy reports whether the allowance is not exhausted.
func (c Controllability) Healthy(reachable bool) bool {
	return reachable && c.confidence > 0
}

func (c Controllability) Confidence() int { return c.confidence }
func (c Controllability) Confirmed() bool { return c.confirmed }
