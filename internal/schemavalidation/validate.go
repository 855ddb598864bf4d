// Package schemavalidation validates promptproof wire documents against the
// embedded JSON Schemas in schemas/. Three document kinds are covered: proof
// records as published to the ledger, verify requests dropped into the inbox,
// and verification reports emitted by the engine.
package schemavalidation

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	proofRecordSchemaName        = "schemas/proof-record-v1.schema.json"
	verifyRequestSchemaName      = "schemas/verify-request-v1.schema.json"
	verificationReportSchemaName = "schemas/verification-report-v1.schema.json"
)

var (
	proofRecordSchema        = mustCompile(proofRecordSchemaName)
	verifyRequestSchema      = mustCompile(verifyRequestSchemaName)
	verificationReportSchema = mustCompile(verificationReportSchemaName)
)

// mustCompile loads and compiles an embedded schema. The schemas ship inside
// the binary, so a failure here is a build defect, not a runtime condition.
func mustCompile(name string) *jsonschema.Schema {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("schemavalidation: read %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
		panic(fmt.Sprintf("schemavalidation: add %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("schemavalidation: compile %s: %v", name, err))
	}
	return schema
}

// ValidateProofRecord checks that data is a canonical proof record ready for
// publication: required fields present, fingerprints 64 lowercase hex.
// Records fetched from the ledger are deliberately not held to this schema;
// decoding stays lenient so damaged records still produce a non-match.
func ValidateProofRecord(data []byte) error {
	return validate(proofRecordSchema, data)
}

// ValidateRequest checks an inbox verify request. Only tx_id is required;
// prompt and output default to empty strings downstream.
func ValidateRequest(data []byte) error {
	return validate(verifyRequestSchema, data)
}

// ValidateReport checks a serialized verification report.
func ValidateReport(data []byte) error {
	return validate(verificationReportSchema, data)
}

func validate(schema *jsonschema.Schema, data []byte) error {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
