package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"oddcert/internal/boundary"
)

const testEnvelopeYAML = `numeric_boundaries:
  - id: speed
    name: Speed limit
    parameter: speed
    min: 0
    max: 100
    hard_limit: true
fail_policy:
  violation_action: record
  connection_loss_action: hold
`

func resetEnvelopeFlags() {
	envelopeFormat = ""
	envelopeTo = ""
	envelopeOutput = ""
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestEnvelopeValidate_ListsBoundaries(t *testing.T) {
	resetEnvelopeFlags()
	path := writeFile(t, "envelope.yaml", testEnvelopeYAML)

	var out bytes.Buffer
	envelopeValidateCmd.SetOut(&out)
	defer envelopeValidateCmd.SetOut(nil)

	if err := runEnvelopeValidate(envelopeValidateCmd, []string{path}); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "1 boundaries") {
		t.Errorf("expected boundary count, got %q", got)
	}
	if !strings.Contains(got, "speed") || !strings.Contains(got, "numeric") {
		t.Errorf("expected speed boundary listed, got %q", got)
	}
	if !strings.Contains(got, "connection_loss_action=hold") {
		t.Errorf("expected fail policy, got %q", got)
	}
}

func TestEnvelopeValidate_RejectsUnknownFields(t *testing.T) {
	resetEnvelopeFlags()
	path := writeFile(t, "envelope.yml", testEnvelopeYAML+"colour: red\n")

	err := runEnvelopeValidate(envelopeValidateCmd, []string{path})
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error should name the file, got %v", err)
	}
}

func TestEnvelopeValidate_FormatFlagOverridesExtension(t *testing.T) {
	resetEnvelopeFlags()
	envelopeFormat = "yaml"
	defer resetEnvelopeFlags()
	path := writeFile(t, "envelope.txt", testEnvelopeYAML)

	if err := runEnvelopeValidate(envelopeValidateCmd, []string{path}); err != nil {
		t.Fatalf("validate with --format yaml failed: %v", err)
	}
}

func TestEnvelopeConvert_YAMLToJSONFile(t *testing.T) {
	resetEnvelopeFlags()
	defer resetEnvelopeFlags()
	path := writeFile(t, "envelope.yaml", testEnvelopeYAML)
	envelopeTo = "json"
	envelopeOutput = filepath.Join(t.TempDir(), "envelope.json")

	if err := runEnvelopeConvert(envelopeConvertCmd, []string{path}); err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	data, err := os.ReadFile(envelopeOutput)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	env, err := boundary.Decode(data, boundary.FormatJSON)
	if err != nil {
		t.Fatalf("converted document does not decode: %v", err)
	}
	if len(env.Boundaries) != 1 || env.Boundaries[0].ID != "speed" {
		t.Errorf("boundaries lost in conversion: %+v", env.Boundaries)
	}
	if env.FailPolicy.ViolationAction != boundary.ViolationRecord {
		t.Errorf("fail policy lost in conversion: %+v", env.FailPolicy)
	}
}

func TestEnvelopeConvert_UnknownTarget(t *testing.T) {
	resetEnvelopeFlags()
	defer resetEnvelopeFlags()
	path := writeFile(t, "envelope.yaml", testEnvelopeYAML)
	envelopeTo = "xml"

	if err := runEnvelopeConvert(envelopeConvertCmd, []string{path}); err == nil {
		t.Fatal("expected unknown output format to fail")
	}
}
