package provenance

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Defaults stamped into records built by NewRecord when the caller leaves
// them empty. They match the values carried by every record the deployed
// publisher has written to the ledger.
const (
	DefaultProject   = "PromptGenix Proof Layer"
	DefaultProofType = "AI_OUTPUT_PROVENANCE"
)

// Ledger tag names and values a publisher attaches to the transaction
// carrying an encoded record.
const (
	TagAppName     = "App-Name"
	TagContentType = "Content-Type"
	TagProofType   = "Proof-Type"

	AppName         = "PromptGenix-Proof-Layer"
	ContentTypeJSON = "application/json"
)

// Record is the canonical decoded proof payload. All fields are optional at
// decode time; absent hash fields are a verification-time concern, not a
// fetch-time one. A Record is never mutated after construction.
type Record struct {
	Project      string `json:"project,omitempty"`
	ProofType    string `json:"proof_type,omitempty"`
	AIModel      string `json:"ai_model,omitempty"`
	PromptHash   string `json:"prompt_hash,omitempty"`
	OutputHash   string `json:"output_hash,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	Author       string `json:"author,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// recordAliases carries the camelCase key variants accepted on read.
// Canonical encoding is always snake_case.
type recordAliases struct {
	ProofType  string `json:"proofType"`
	AIModel    string `json:"aiModel"`
	PromptHash string `json:"promptHash"`
	OutputHash string `json:"outputHash"`
	CreatedAt  string `json:"createdAt"`
}

// UnmarshalJSON decodes a record accepting both snake_case and camelCase
// keys. Snake_case wins when a field is present under both spellings.
// Unknown keys are ignored.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var a recordAliases
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if p.ProofType == "" {
		p.ProofType = a.ProofType
	}
	if p.AIModel == "" {
		p.AIModel = a.AIModel
	}
	if p.PromptHash == "" {
		p.PromptHash = a.PromptHash
	}
	if p.OutputHash == "" {
		p.OutputHash = a.OutputHash
	}
	if p.CreatedAt == "" {
		p.CreatedAt = a.CreatedAt
	}
	*r = Record(p)
	return nil
}

// Encode renders the record as canonical snake_case JSON.
func (r *Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// RecordMetadata is the descriptive subset of a Record carried into reports:
// everything except the two hash fields.
type RecordMetadata struct {
	Project      string `json:"project,omitempty"`
	ProofType    string `json:"proof_type,omitempty"`
	AIModel      string `json:"ai_model,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	Author       string `json:"author,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// Metadata returns the descriptive subset of the record.
func (r *Record) Metadata() RecordMetadata {
	return RecordMetadata{
		Project:      r.Project,
		ProofType:    r.ProofType,
		AIModel:      r.AIModel,
		CreatedAt:    r.CreatedAt,
		Author:       r.Author,
		Organization: r.Organization,
	}
}

// RecordMeta carries caller-supplied attribution for NewRecord.
type RecordMeta struct {
	Project      string
	ProofType    string
	AIModel      string
	Author       string
	Organization string
}

// NewRecord builds the canonical unsigned proof payload for a prompt/output
// pair: both texts are fingerprinted with Fingerprint, created_at is stamped
// in UTC RFC 3339, and empty Project/ProofType fall back to the published
// defaults. Signing and submission belong to the publisher; nothing here
// touches key material or the network.
func NewRecord(prompt, output string, meta RecordMeta) Record {
	rec := Record{
		Project:      meta.Project,
		ProofType:    meta.ProofType,
		AIModel:      meta.AIModel,
		PromptHash:   Fingerprint(prompt),
		OutputHash:   Fingerprint(output),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		Author:       meta.Author,
		Organization: meta.Organization,
	}
	if rec.Project == "" {
		rec.Project = DefaultProject
	}
	if rec.ProofType == "" {
		rec.ProofType = DefaultProofType
	}
	return rec
}

// Tag is one name/value pair attached to the ledger transaction.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LedgerTags returns the tag pairs a publisher attaches to the transaction
// carrying an encoded record. An empty contentType defaults to JSON.
func LedgerTags(contentType string) []Tag {
	if contentType == "" {
		contentType = ContentTypeJSON
	}
	return []Tag{
		{Name: TagAppName, Value: AppName},
		{Name: TagContentType, Value: contentType},
		{Name: TagProofType, Value: DefaultProofType},
	}
}

// DecodeRecord decodes a gateway payload into a Record. The canonical order
// is fixed: the body is parsed directly as a JSON object first; if that
// fails, the body is base64-decoded and the decoded bytes are parsed as a
// JSON object. JSON scalars, arrays, and null are decode failures; the
// fetcher is permissive about where a payload lives but strict that the
// result is a record object.
func DecodeRecord(body []byte) (*Record, error) {
	rec, rawErr := decodeRecordJSON(body)
	if rawErr == nil {
		return rec, nil
	}

	unwrapped, b64Err := decodeBase64(string(body))
	if b64Err != nil {
		return nil, fmt.Errorf("payload is neither JSON (%v) nor base64-wrapped JSON (%v)", rawErr, b64Err)
	}
	rec, jsonErr := decodeRecordJSON(unwrapped)
	if jsonErr != nil {
		return nil, fmt.Errorf("payload is neither JSON (%v) nor base64-wrapped JSON (%v)", rawErr, jsonErr)
	}
	return rec, nil
}

func decodeRecordJSON(body []byte) (*Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}
	var rec Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// base64Encodings in trial order. Gateways serve standard-padded bodies from
// some APIs and URL-safe unpadded bodies from the tx data API.
var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty payload")
	}
	var lastErr error
	for _, enc := range base64Encodings {
		decoded, err := enc.DecodeString(s)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
