package provenance

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sampleRecordJSON() string {
	return `{
		"project": "PromptGenix Proof Layer",
		"proof_type": "AI_OUTPUT_PROVENANCE",
		"ai_model": "gpt-4",
		"prompt_hash": "` + Fingerprint("hello") + `",
		"output_hash": "` + Fingerprint("world") + `",
		"created_at": "2025-06-01T12:00:00Z",
		"author": "alice",
		"organization": "acme"
	}`
}

// =============================================================================
// Tests for DecodeRecord
// =============================================================================

func TestDecodeRecordRawJSON(t *testing.T) {
	rec, err := DecodeRecord([]byte(sampleRecordJSON()))
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}

	if rec.Project != "PromptGenix Proof Layer" {
		t.Errorf("project = %q", rec.Project)
	}
	if rec.ProofType != "AI_OUTPUT_PROVENANCE" {
		t.Errorf("proof_type = %q", rec.ProofType)
	}
	if rec.AIModel != "gpt-4" {
		t.Errorf("ai_model = %q", rec.AIModel)
	}
	if rec.PromptHash != Fingerprint("hello") {
		t.Errorf("prompt_hash = %q", rec.PromptHash)
	}
	if rec.OutputHash != Fingerprint("world") {
		t.Errorf("output_hash = %q", rec.OutputHash)
	}
	if rec.Author != "alice" || rec.Organization != "acme" {
		t.Errorf("attribution = %q / %q", rec.Author, rec.Organization)
	}
}

func TestDecodeRecordCamelCaseKeys(t *testing.T) {
	body := `{
		"project": "p",
		"proofType": "t",
		"aiModel": "m",
		"promptHash": "aaa",
		"outputHash": "bbb",
		"createdAt": "2025-06-01T12:00:00Z"
	}`

	rec, err := DecodeRecord([]byte(body))
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}

	if rec.ProofType != "t" {
		t.Errorf("proofType alias not applied: %q", rec.ProofType)
	}
	if rec.AIModel != "m" {
		t.Errorf("aiModel alias not applied: %q", rec.AIModel)
	}
	if rec.PromptHash != "aaa" || rec.OutputHash != "bbb" {
		t.Errorf("hash aliases not applied: %q / %q", rec.PromptHash, rec.OutputHash)
	}
	if rec.CreatedAt != "2025-06-01T12:00:00Z" {
		t.Errorf("createdAt alias not applied: %q", rec.CreatedAt)
	}
}

func TestDecodeRecordSnakeCaseWinsOverCamel(t *testing.T) {
	body := `{"prompt_hash": "snake", "promptHash": "camel"}`

	rec, err := DecodeRecord([]byte(body))
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if rec.PromptHash != "snake" {
		t.Errorf("expected snake_case to win, got %q", rec.PromptHash)
	}
}

func TestDecodeRecordBase64Wrapped(t *testing.T) {
	raw := []byte(sampleRecordJSON())
	direct, err := DecodeRecord(raw)
	if err != nil {
		t.Fatalf("raw decode failed: %v", err)
	}

	encodings := map[string]string{
		"standard":         base64.StdEncoding.EncodeToString(raw),
		"url-safe":         base64.URLEncoding.EncodeToString(raw),
		"raw standard":     base64.RawStdEncoding.EncodeToString(raw),
		"raw url-safe":     base64.RawURLEncoding.EncodeToString(raw),
		"trailing newline": base64.StdEncoding.EncodeToString(raw) + "\n",
	}

	for name, wrapped := range encodings {
		t.Run(name, func(t *testing.T) {
			rec, err := DecodeRecord([]byte(wrapped))
			if err != nil {
				t.Fatalf("base64 decode failed: %v", err)
			}
			if *rec != *direct {
				t.Errorf("base64-wrapped record differs from raw: %+v vs %+v", rec, direct)
			}
		})
	}
}

func TestDecodeRecordUnknownKeysIgnored(t *testing.T) {
	body := `{"prompt_hash": "aaa", "totally_unknown": 42, "nested": {"x": 1}}`

	rec, err := DecodeRecord([]byte(body))
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if rec.PromptHash != "aaa" {
		t.Errorf("prompt_hash = %q", rec.PromptHash)
	}
}

func TestDecodeRecordMissingHashesAccepted(t *testing.T) {
	// Absent hash fields are a verification-time concern, not a decode error.
	rec, err := DecodeRecord([]byte(`{"project": "p"}`))
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if rec.PromptHash != "" || rec.OutputHash != "" {
		t.Errorf("expected empty hashes, got %q / %q", rec.PromptHash, rec.OutputHash)
	}
}

func TestDecodeRecordRejectsNonObjects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "null", body: `null`},
		{name: "array", body: `[1, 2, 3]`},
		{name: "string", body: `"just a string"`},
		{name: "number", body: `42`},
		{name: "empty", body: ``},
		{name: "whitespace", body: "   \n\t  "},
		{name: "garbage", body: `!!! definitely not json or base64 !!!`},
		{name: "truncated object", body: `{"prompt_hash": "aaa"`},
		{name: "wrong value type", body: `{"prompt_hash": 123}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRecord([]byte(tt.body)); err == nil {
				t.Errorf("expected decode error for %q", tt.body)
			}
		})
	}
}

func TestDecodeRecordErrorMentionsBothFailures(t *testing.T) {
	_, err := DecodeRecord([]byte(`!!! not parseable !!!`))
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "JSON") || !strings.Contains(msg, "base64") {
		t.Errorf("error should mention both decode paths: %s", msg)
	}
}

func TestDecodeRecordBase64OfNonObjectRejected(t *testing.T) {
	wrapped := base64.StdEncoding.EncodeToString([]byte(`[1,2,3]`))
	if _, err := DecodeRecord([]byte(wrapped)); err == nil {
		t.Error("expected error for base64-wrapped non-object")
	}
}

// =============================================================================
// Tests for NewRecord and encoding
// =============================================================================

func TestNewRecordDefaults(t *testing.T) {
	rec := NewRecord("hello", "world", RecordMeta{AIModel: "gpt-4", Author: "alice"})

	if rec.Project != DefaultProject {
		t.Errorf("project = %q, want %q", rec.Project, DefaultProject)
	}
	if rec.ProofType != DefaultProofType {
		t.Errorf("proof_type = %q, want %q", rec.ProofType, DefaultProofType)
	}
	if rec.PromptHash != Fingerprint("hello") {
		t.Errorf("prompt_hash not fingerprint of prompt")
	}
	if rec.OutputHash != Fingerprint("world") {
		t.Errorf("output_hash not fingerprint of output")
	}
	if rec.AIModel != "gpt-4" || rec.Author != "alice" {
		t.Errorf("meta not carried: %+v", rec)
	}

	if _, err := time.Parse(time.RFC3339, rec.CreatedAt); err != nil {
		t.Errorf("created_at %q is not RFC 3339: %v", rec.CreatedAt, err)
	}
}

func TestNewRecordExplicitMetaWins(t *testing.T) {
	rec := NewRecord("p", "o", RecordMeta{Project: "Custom", ProofType: "CUSTOM_TYPE"})
	if rec.Project != "Custom" || rec.ProofType != "CUSTOM_TYPE" {
		t.Errorf("explicit meta overridden: %+v", rec)
	}
}

func TestRecordEncodeSnakeCase(t *testing.T) {
	rec := NewRecord("hello", "world", RecordMeta{AIModel: "m"})
	data, err := rec.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var keys map[string]any
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatalf("encoded record is not JSON: %v", err)
	}
	for _, want := range []string{"project", "proof_type", "ai_model", "prompt_hash", "output_hash", "created_at"} {
		if _, ok := keys[want]; !ok {
			t.Errorf("encoded record missing key %q: %s", want, data)
		}
	}
	for _, reject := range []string{"proofType", "aiModel", "promptHash", "outputHash", "createdAt"} {
		if _, ok := keys[reject]; ok {
			t.Errorf("encoded record contains camelCase key %q", reject)
		}
	}
}

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	rec := NewRecord("prompt text", "output text", RecordMeta{
		AIModel: "gpt-4", Author: "bob", Organization: "acme",
	})

	data, err := rec.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if *decoded != rec {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, rec)
	}
}

func TestLedgerTags(t *testing.T) {
	tags := LedgerTags("")
	if len(tags) != 3 {
		t.Fatalf("expected 3 tags, got %d", len(tags))
	}
	if tags[0].Name != TagAppName || tags[0].Value != AppName {
		t.Errorf("app name tag = %+v", tags[0])
	}
	if tags[1].Name != TagContentType || tags[1].Value != ContentTypeJSON {
		t.Errorf("content type tag = %+v", tags[1])
	}
	if tags[2].Name != TagProofType || tags[2].Value != DefaultProofType {
		t.Errorf("proof type tag = %+v", tags[2])
	}

	custom := LedgerTags("text/plain")
	if custom[1].Value != "text/plain" {
		t.Errorf("custom content type not honored: %+v", custom[1])
	}
}

func TestRecordMetadataSubset(t *testing.T) {
	rec := Record{
		Project:      "p",
		ProofType:    "t",
		AIModel:      "m",
		PromptHash:   "hash1",
		OutputHash:   "hash2",
		CreatedAt:    "2025-06-01T12:00:00Z",
		Author:       "a",
		Organization: "o",
	}

	meta := rec.Metadata()
	if meta.Project != "p" || meta.ProofType != "t" || meta.AIModel != "m" ||
		meta.CreatedAt != "2025-06-01T12:00:00Z" || meta.Author != "a" || meta.Organization != "o" {
		t.Errorf("metadata subset wrong: %+v", meta)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), "hash1") || strings.Contains(string(data), "hash2") {
		t.Errorf("metadata must not carry hashes: %s", data)
	}
}
