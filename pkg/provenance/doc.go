// Package provenance retrieves and verifies AI-text provenance proofs
// published to the Arweave ledger.
//
// A proof record binds a prompt and an AI-generated output to their SHA-256
// fingerprints at publication time. Given the record's transaction
// identifier, the engine locates the payload across several public gateways
// (which serve the same entry under different URL shapes and encodings),
// decodes it into a canonical Record, and compares the stored fingerprints
// against freshly computed fingerprints of caller-supplied text.
//
// The package exposes three layers, bottom-up:
//
//   - Fingerprint: the digest function shared with publishers.
//   - Fetcher: ordered multi-gateway retrieval with typed per-attempt
//     outcomes and a first-success-wins candidate loop.
//   - Verifier: fetch plus compare, producing an immutable Report.
//
// A not-found result and a fetched-but-mismatching record are distinct
// outcomes: the former is an error matching ErrNotFound, the latter a
// successful Report with Verified=false. Callers must never conflate them.
package provenance
