package schemavalidation

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

type schemaCase struct {
	name     string
	fixture  string
	validate func([]byte) error
}

func TestFixturesValidate(t *testing.T) {
	cases := []schemaCase{
		{
			name:     "proof-record",
			fixture:  "proof-record-v1.json",
			validate: ValidateProofRecord,
		},
		{
			name:     "verify-request",
			fixture:  "verify-request-v1.json",
			validate: ValidateRequest,
		},
		{
			name:     "verification-report",
			fixture:  "verification-report-v1.json",
			validate: ValidateReport,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.validate(readFixture(t, tc.fixture)); err != nil {
				t.Fatalf("schema validation failed for %s: %v", tc.fixture, err)
			}
		})
	}
}

func TestValidateProofRecordMinimal(t *testing.T) {
	doc := []byte(`{
		"project": "PromptGenix Proof Layer",
		"proof_type": "AI_OUTPUT_PROVENANCE",
		"prompt_hash": "c1952c78349c65bd81f5dcf5561dbd54f90e9a5a344190bbba66dfae2cca0e84",
		"output_hash": "27265c8c24193cfdd3a6414c6d754da6ebe17fd0d6771413fef26b5a6fcafddf",
		"created_at": "2025-11-04T09:12:44Z"
	}`)
	if err := ValidateProofRecord(doc); err != nil {
		t.Errorf("minimal record rejected: %v", err)
	}
}

// Legacy records carry camelCase duplicates next to the canonical keys.
// The schema tolerates unknown properties so those records still pass.
func TestValidateProofRecordExtraKeys(t *testing.T) {
	doc := []byte(`{
		"project": "PromptGenix Proof Layer",
		"proof_type": "AI_OUTPUT_PROVENANCE",
		"prompt_hash": "c1952c78349c65bd81f5dcf5561dbd54f90e9a5a344190bbba66dfae2cca0e84",
		"promptHash": "c1952c78349c65bd81f5dcf5561dbd54f90e9a5a344190bbba66dfae2cca0e84",
		"output_hash": "27265c8c24193cfdd3a6414c6d754da6ebe17fd0d6771413fef26b5a6fcafddf",
		"created_at": "2025-11-04T09:12:44Z"
	}`)
	if err := ValidateProofRecord(doc); err != nil {
		t.Errorf("record with extra keys rejected: %v", err)
	}
}

func TestValidateProofRecordRejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"missing prompt_hash", `{
			"project": "p", "proof_type": "t",
			"output_hash": "27265c8c24193cfdd3a6414c6d754da6ebe17fd0d6771413fef26b5a6fcafddf",
			"created_at": "2025-11-04T09:12:44Z"
		}`},
		{"uppercase hash", `{
			"project": "p", "proof_type": "t",
			"prompt_hash": "C1952C78349C65BD81F5DCF5561DBD54F90E9A5A344190BBBA66DFAE2CCA0E84",
			"output_hash": "27265c8c24193cfdd3a6414c6d754da6ebe17fd0d6771413fef26b5a6fcafddf",
			"created_at": "2025-11-04T09:12:44Z"
		}`},
		{"truncated hash", `{
			"project": "p", "proof_type": "t",
			"prompt_hash": "c1952c78",
			"output_hash": "27265c8c24193cfdd3a6414c6d754da6ebe17fd0d6771413fef26b5a6fcafddf",
			"created_at": "2025-11-04T09:12:44Z"
		}`},
		{"empty project", `{
			"project": "", "proof_type": "t",
			"prompt_hash": "c1952c78349c65bd81f5dcf5561dbd54f90e9a5a344190bbba66dfae2cca0e84",
			"output_hash": "27265c8c24193cfdd3a6414c6d754da6ebe17fd0d6771413fef26b5a6fcafddf",
			"created_at": "2025-11-04T09:12:44Z"
		}`},
		{"numeric created_at", `{
			"project": "p", "proof_type": "t",
			"prompt_hash": "c1952c78349c65bd81f5dcf5561dbd54f90e9a5a344190bbba66dfae2cca0e84",
			"output_hash": "27265c8c24193cfdd3a6414c6d754da6ebe17fd0d6771413fef26b5a6fcafddf",
			"created_at": 1762247564
		}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateProofRecord([]byte(tc.doc)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidateRequestMinimal(t *testing.T) {
	if err := ValidateRequest([]byte(`{"tx_id": "abc123"}`)); err != nil {
		t.Errorf("minimal request rejected: %v", err)
	}
}

func TestValidateRequestRejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"missing tx_id", `{"prompt": "a", "output": "b"}`},
		{"empty tx_id", `{"tx_id": ""}`},
		{"tx_id with space", `{"tx_id": "abc def"}`},
		{"bad report_format", `{"tx_id": "abc", "report_format": "xml"}`},
		{"prompt not a string", `{"tx_id": "abc", "prompt": 7}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateRequest([]byte(tc.doc)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidateReportRejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"verified as string", `{
			"tx_id": "abc", "verified": "yes",
			"prompt_match": true, "output_match": true,
			"local_prompt_hash": "c1952c78349c65bd81f5dcf5561dbd54f90e9a5a344190bbba66dfae2cca0e84",
			"local_output_hash": "27265c8c24193cfdd3a6414c6d754da6ebe17fd0d6771413fef26b5a6fcafddf",
			"metadata": {}, "verified_at": "2025-11-04T09:13:02Z", "duration_ns": 1
		}`},
		{"missing duration_ns", `{
			"tx_id": "abc", "verified": true,
			"prompt_match": true, "output_match": true,
			"local_prompt_hash": "c1952c78349c65bd81f5dcf5561dbd54f90e9a5a344190bbba66dfae2cca0e84",
			"local_output_hash": "27265c8c24193cfdd3a6414c6d754da6ebe17fd0d6771413fef26b5a6fcafddf",
			"metadata": {}, "verified_at": "2025-11-04T09:13:02Z"
		}`},
		{"negative duration_ns", `{
			"tx_id": "abc", "verified": true,
			"prompt_match": true, "output_match": true,
			"local_prompt_hash": "c1952c78349c65bd81f5dcf5561dbd54f90e9a5a344190bbba66dfae2cca0e84",
			"local_output_hash": "27265c8c24193cfdd3a6414c6d754da6ebe17fd0d6771413fef26b5a6fcafddf",
			"metadata": {}, "verified_at": "2025-11-04T09:13:02Z", "duration_ns": -5
		}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateReport([]byte(tc.doc)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidateMalformedJSON(t *testing.T) {
	if err := ValidateRequest([]byte(`{"tx_id": `)); err == nil {
		t.Error("expected parse error for malformed JSON, got nil")
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join(repoRoot(t), "docs", "spec", "fixtures", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("unable to resolve caller path")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
