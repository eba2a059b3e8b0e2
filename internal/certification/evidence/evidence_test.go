package evidence

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oddcert/internal/boundary"
	id "oddcert/pkg/domain"
)

func records(appID id.ApplicationID) []Record {
	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	sessionID := id.NewSessionID()
	return []Record{
		{
			ApplicationID: appID, Attempt: 1, Sequence: 1, SessionID: sessionID, Kind: KindEvaluation,
			Result:     boundary.EvaluationResult{SampleRef: "a-1", Verdict: boundary.VerdictPass, Violations: []boundary.Violation{}, EvaluatedAt: t0},
			RecordedAt: t0,
		},
		{
			ApplicationID: appID, Attempt: 1, Sequence: 2, SessionID: sessionID, Kind: KindEvaluation,
			Result: boundary.EvaluationResult{SampleRef: "a-2", Verdict: boundary.VerdictBlock, Violations: []boundary.Violation{
				{BoundaryID: "speed", Message: "speed (150) above maximum (100)"},
			}, EvaluatedAt: t0.Add(time.Second)},
			RecordedAt: t0.Add(time.Second),
		},
	}
}

func TestHashIsStableAndPrefixed(t *testing.T) {
	appID := id.NewApplicationID()
	recs := records(appID)

	h1, err := Hash(recs)
	require.NoError(t, err)
	h2, err := Hash(recs)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.True(t, strings.HasPrefix(h1, HashPrefix))
	assert.Len(t, h1, len(HashPrefix)+64)
}

func TestHashIgnoresSliceOrder(t *testing.T) {
	recs := records(id.NewApplicationID())
	forward, err := Hash(recs)
	require.NoError(t, err)

	reversed := []Record{recs[1], recs[0]}
	backward, err := Hash(reversed)
	require.NoError(t, err)

	assert.Equal(t, forward, backward, "records are hashed in sequence order")
}

func TestHashDetectsTampering(t *testing.T) {
	recs := records(id.NewApplicationID())
	original, err := Hash(recs)
	require.NoError(t, err)

	recs[1].Result.Violations[0].Message = "speed (99) above maximum (100)"
	tampered, err := Hash(recs)
	require.NoError(t, err)

	assert.NotEqual(t, original, tampered)
}

func TestHashOfEmptyLog(t *testing.T) {
	h, err := Hash(nil)
	require.NoError(t, err)
	again, err := Hash([]Record{})
	require.NoError(t, err)
	assert.Equal(t, h, again)
}

func TestViolations(t *testing.T) {
	assert.Equal(t, 1, Violations(records(id.NewApplicationID())))
}
