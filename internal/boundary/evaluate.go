package boundary

import (
	"fmt"
	"math"
	"time"
)

// Evaluate checks one boundary against one sample. It reads st and never
// writes it; st may be nil for stateless evaluation.
func Evaluate(b Boundary, s Sample, st *State) Result {
	if b.Params == nil {
		return fail(b, "boundary has no definition")
	}
	return b.Params.evaluate(b, s, st)
}

// EvaluateEnvelope checks every boundary of env and returns PASS only when
// all of them pass. Evaluation never stops at the first failure: BLOCK
// carries every violation in envelope order.
func EvaluateEnvelope(env *Envelope, s Sample, st *State) EvaluationResult {
	result := EvaluationResult{
		SampleRef:   SampleRef(s),
		Verdict:     VerdictPass,
		Violations:  []Violation{},
		EvaluatedAt: s.Timestamp,
	}
	if env == nil {
		return result
	}
	for _, b := range env.Boundaries {
		r := Evaluate(b, s, st)
		if !r.Passed {
			result.Violations = append(result.Violations, Violation{BoundaryID: b.ID, Message: r.Message})
		}
	}
	if len(result.Violations) > 0 {
		result.Verdict = VerdictBlock
	}
	return result
}

// EvaluateTick checks a connectivity boundary against the time elapsed since
// the agent was last heard from. Other kinds always pass at tick cadence.
func EvaluateTick(b Boundary, now, lastSeen time.Time) Result {
	p, ok := b.Params.(*ConnectivityParams)
	if !ok {
		return pass(b)
	}
	gap := now.Sub(lastSeen)
	if gap > p.MaxGap() {
		return fail(b, "no contact for %ss, above maximum gap (%ss)",
			formatNumber(math.Floor(gap.Seconds())), formatNumber(p.MaxGapS))
	}
	return pass(b)
}

// EvaluateConnectivity runs EvaluateTick over every connectivity boundary of
// env and returns the violations.
func EvaluateConnectivity(env *Envelope, now, lastSeen time.Time) []Violation {
	if env == nil {
		return nil
	}
	var out []Violation
	for _, b := range env.Boundaries {
		if b.Kind() != KindConnectivity {
			continue
		}
		if r := EvaluateTick(b, now, lastSeen); !r.Passed {
			out = append(out, Violation{BoundaryID: b.ID, Message: r.Message})
		}
	}
	return out
}

// SampleRef identifies a sample in evaluation records: the agent action id
// when present, otherwise its timestamp.
func SampleRef(s Sample) string {
	if s.ActionID != "" {
		return s.ActionID
	}
	return fmt.Sprintf("ts:%s", s.Timestamp.UTC().Format(time.RFC3339Nano))
}
