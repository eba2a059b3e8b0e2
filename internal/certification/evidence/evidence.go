// Package evidence builds the tamper-evident record of a conformance test.
package evidence

import (
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"oddcert/internal/boundary"
	id "oddcert/pkg/domain"
)

// HashPrefix names the digest algorithm in stored hashes.
const HashPrefix = "blake3:"

// Kind distinguishes what produced a record.
type Kind string

const (
	KindEvaluation        Kind = "evaluation"
	KindConnectivityFault Kind = "connectivity_fault"
)

// Record is one entry of a test's evidence log. Records are append-only;
// Sequence is assigned by the store in append order.
type Record struct {
	ApplicationID id.ApplicationID          `json:"application_id" cbor:"application_id"`
	Attempt       int                       `json:"attempt" cbor:"attempt"`
	Sequence      int64                     `json:"sequence" cbor:"sequence"`
	SessionID     id.SessionID              `json:"session_id" cbor:"session_id"`
	Kind          Kind                      `json:"kind" cbor:"kind"`
	Result        boundary.EvaluationResult `json:"result" cbor:"result"`
	RecordedAt    time.Time                 `json:"recorded_at" cbor:"recorded_at"`
}

// encMode is Core Deterministic Encoding (RFC 8949 §4.2) with RFC 3339
// timestamps, so equal logs always produce identical bytes.
var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.TextMarshaler = cbor.TextMarshalerTextString
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic("evidence: CBOR encoder initialization failed: " + err.Error())
	}
}

// Encode serialises records in sequence order.
func Encode(records []Record) ([]byte, error) {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b Record) int {
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		default:
			return 0
		}
	})
	if ordered == nil {
		ordered = []Record{}
	}
	data, err := encMode.Marshal(ordered)
	if err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	return data, nil
}

// Hash returns "blake3:<hex>" over the canonical encoding of records.
func Hash(records []Record) (string, error) {
	data, err := Encode(records)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:]), nil
}

// Violations counts the records that carry at least one violation.
func Violations(records []Record) int {
	n := 0
	for _, r := range records {
		if len(r.Result.Violations) > 0 {
			n++
		}
	}
	return n
}
