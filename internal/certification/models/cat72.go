package models

import (
	"math"
	"time"

	id "oddcert/pkg/domain"
)

// DefaultCAT72Hours is the length of a continuous conformance test.
const DefaultCAT72Hours = 72

// CAT72Result is the outcome of a finished test.
type CAT72Result string

const (
	CAT72Pass CAT72Result = "PASS"
	CAT72Fail CAT72Result = "FAIL"
)

// Failure reasons recorded on a failed test.
const (
	FailureViolation          = "boundary_violation"
	FailureConnectivity       = "connectivity_fault"
	FailureUnresolved         = "unresolved_violations"
	FailureReviewerSuspension = "reviewer_suspension"
	FailureReviewerRevocation = "reviewer_revocation"
)

// CAT72Test is one attempt at the continuous conformance test.
//
// Invariants:
//   - the timer never pauses: elapsed time is wall time since StartedAt
//   - Result is empty while running and never changes once set
//   - UnresolvedViolations <= TotalViolations
type CAT72Test struct {
	ApplicationID        id.ApplicationID `json:"application_id"`
	Attempt              int              `json:"attempt"`
	StartedAt            time.Time        `json:"started_at"`
	DurationHours        int              `json:"duration_hours"`
	ElapsedS             float64          `json:"elapsed_s"`
	Result               CAT72Result      `json:"result,omitempty"`
	EndedAt              *time.Time       `json:"ended_at,omitempty"`
	FailureReason        string           `json:"failure_reason,omitempty"`
	TotalViolations      int              `json:"total_violations"`
	UnresolvedViolations int              `json:"unresolved_violations"`
	Overridden           bool             `json:"overridden,omitempty"`
	OverrideReason       string           `json:"override_reason,omitempty"`
	EvaluationCount      int64            `json:"evaluation_count"`
}

// Progress is a timer reading.
type Progress struct {
	ElapsedS        float64     `json:"elapsed_s"`
	RemainingS      float64     `json:"remaining_s"`
	PercentComplete float64     `json:"percent"`
	Result          CAT72Result `json:"result"`
}

// NewCAT72Test starts an attempt at now.
func NewCAT72Test(appID id.ApplicationID, attempt int, now time.Time, durationHours int) *CAT72Test {
	if durationHours <= 0 {
		durationHours = DefaultCAT72Hours
	}
	return &CAT72Test{
		ApplicationID: appID,
		Attempt:       attempt,
		StartedAt:     now,
		DurationHours: durationHours,
	}
}

// Duration is the full test length.
func (t *CAT72Test) Duration() time.Duration {
	return time.Duration(t.DurationHours) * time.Hour
}

// Running reports whether the test has no result yet.
func (t *CAT72Test) Running() bool {
	return t.Result == ""
}

// Due reports whether a running test has reached its duration at now.
func (t *CAT72Test) Due(now time.Time) bool {
	return t.Running() && !now.Before(t.StartedAt.Add(t.Duration()))
}

// Progress reads the timer at now without changing it. A finished test is
// read at its end time.
func (t *CAT72Test) Progress(now time.Time) Progress {
	elapsed := t.elapsedAt(now)
	total := t.Duration().Seconds()
	return Progress{
		ElapsedS:        elapsed,
		RemainingS:      math.Max(0, total-elapsed),
		PercentComplete: math.Min(100, elapsed/total*100),
		Result:          t.Result,
	}
}

// Advance moves the stored elapsed time forward to now and returns the
// reading. Elapsed time never decreases, even if now is earlier than a
// previous reading.
func (t *CAT72Test) Advance(now time.Time) Progress {
	t.ElapsedS = t.elapsedAt(now)
	return t.Progress(now)
}

func (t *CAT72Test) elapsedAt(now time.Time) float64 {
	if t.EndedAt != nil {
		now = *t.EndedAt
	}
	elapsed := math.Max(0, now.Sub(t.StartedAt).Seconds())
	elapsed = math.Min(elapsed, t.Duration().Seconds())
	return math.Max(elapsed, t.ElapsedS)
}

// IdempotencyKey identifies the certificate this attempt may produce.
func (t *CAT72Test) IdempotencyKey() string {
	return t.ApplicationID.String() + ":" + t.StartedAt.UTC().Format(time.RFC3339Nano)
}

// ApplyViolation counts a violation kept under the record policy.
func (t *CAT72Test) ApplyViolation(n int) {
	t.TotalViolations += n
	t.UnresolvedViolations += n
}

// ApplyResolve clears the unresolved count after reviewer sign-off.
func (t *CAT72Test) ApplyResolve() int {
	resolved := t.UnresolvedViolations
	t.UnresolvedViolations = 0
	return resolved
}

// ApplyPass sets a PASS result at now.
func (t *CAT72Test) ApplyPass(now time.Time) {
	t.Advance(now)
	t.Result = CAT72Pass
	t.EndedAt = &now
}

// ApplyOverride sets an administrative PASS result.
func (t *CAT72Test) ApplyOverride(now time.Time, reason string) {
	t.ApplyPass(now)
	t.Overridden = true
	t.OverrideReason = reason
}

// ApplyFail sets a FAIL result at now.
func (t *CAT72Test) ApplyFail(now time.Time, reason string) {
	t.Advance(now)
	t.Result = CAT72Fail
	t.FailureReason = reason
	t.EndedAt = &now
}
