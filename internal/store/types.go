// Package store provides SQLite-backed verification history and proof
// caching for promptproof.
package store

import (
	"time"

	"github.com/google/uuid"

	"promptproof/pkg/provenance"
)

// Verification is one recorded verification outcome.
type Verification struct {
	ID               string
	TxID             string
	Verified         bool
	PromptMatch      bool
	OutputMatch      bool
	LocalPromptHash  string
	StoredPromptHash string // empty when the record carried no hash
	LocalOutputHash  string
	StoredOutputHash string // empty when the record carried no hash
	SourceURL        string
	CreatedAt        int64 // Unix nanoseconds
}

// CachedProof is a raw proof payload retained from a successful fetch.
type CachedProof struct {
	TxID      string
	Payload   []byte
	SourceURL string
	FetchedAt int64 // Unix nanoseconds
}

// FromReport builds a Verification row from a completed report.
func FromReport(r *provenance.Report) *Verification {
	createdAt := r.VerifiedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &Verification{
		ID:               uuid.New().String(),
		TxID:             r.TxID,
		Verified:         r.Verified,
		PromptMatch:      r.PromptMatch,
		OutputMatch:      r.OutputMatch,
		LocalPromptHash:  r.LocalPromptHash,
		StoredPromptHash: r.StoredPromptHash,
		LocalOutputHash:  r.LocalOutputHash,
		StoredOutputHash: r.StoredOutputHash,
		SourceURL:        r.SourceURL,
		CreatedAt:        createdAt.UnixNano(),
	}
}
