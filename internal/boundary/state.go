package boundary

import "time"

// State is the rolling evaluation state of one session. It belongs to the
// session, never to a boundary, and is not safe for concurrent use: the
// owning session serialises access.
type State struct {
	rates     map[string][]point
	totals    map[string]accumulator
	sequences map[string]int
	windows   map[string][]float64

	// LastSampleAt is the timestamp of the most recently recorded sample.
	LastSampleAt time.Time
	// Samples counts recorded samples.
	Samples int64
}

type point struct {
	at    time.Time
	value float64
}

type accumulator struct {
	periodStart time.Time
	total       float64
}

// NewState returns empty rolling state.
func NewState() *State {
	return &State{
		rates:     make(map[string][]point),
		totals:    make(map[string]accumulator),
		sequences: make(map[string]int),
		windows:   make(map[string][]float64),
	}
}

// Record commits a sample into the rolling state of every stateful boundary
// of env. Call it after evaluation so the verdict reflects state before the
// sample.
func (st *State) Record(env *Envelope, s Sample) {
	if st == nil {
		return
	}
	if env != nil {
		for _, b := range env.Boundaries {
			if r, ok := b.Params.(recorder); ok {
				r.record(b, s, st)
			}
		}
	}
	if s.Timestamp.After(st.LastSampleAt) {
		st.LastSampleAt = s.Timestamp
	}
	st.Samples++
}

// rateReference returns the oldest buffered point inside the window ending
// at now.
func (st *State) rateReference(boundaryID string, now time.Time, window time.Duration) (point, bool) {
	if st == nil {
		return point{}, false
	}
	cutoff := now.Add(-window)
	for _, p := range st.rates[boundaryID] {
		if !p.at.Before(cutoff) && !p.at.After(now) {
			return p, true
		}
	}
	return point{}, false
}

func (st *State) pushRate(boundaryID string, p point, window time.Duration) {
	buf := append(st.rates[boundaryID], p)
	cutoff := p.at.Add(-window)
	i := 0
	for i < len(buf) && buf[i].at.Before(cutoff) {
		i++
	}
	st.rates[boundaryID] = buf[i:]
}

// runningTotal returns the cumulative total that applies at now, treating an
// elapsed reset period as zero.
func (st *State) runningTotal(boundaryID string, now time.Time, period time.Duration) accumulator {
	if st == nil {
		return accumulator{periodStart: now}
	}
	acc, ok := st.totals[boundaryID]
	if !ok || acc.periodStart.IsZero() || now.Sub(acc.periodStart) >= period {
		return accumulator{periodStart: now}
	}
	return acc
}

func (st *State) sequencePosition(boundaryID string) int {
	if st == nil {
		return -1
	}
	pos, ok := st.sequences[boundaryID]
	if !ok {
		return -1
	}
	return pos
}

// windowWith returns the trailing window including v, capped at size.
func (st *State) windowWith(boundaryID string, v float64, size int) []float64 {
	var prior []float64
	if st != nil {
		prior = st.windows[boundaryID]
	}
	out := make([]float64, 0, len(prior)+1)
	out = append(out, prior...)
	out = append(out, v)
	if len(out) > size {
		out = out[len(out)-size:]
	}
	return out
}
