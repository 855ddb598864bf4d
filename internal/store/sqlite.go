package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store represents the SQLite verification history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs
// migrations. busyTimeoutMs bounds how long writers wait on a locked
// database; zero or negative selects the default of 5000ms.
func Open(path string, busyTimeoutMs int) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InsertVerification records a verification outcome. A missing ID is
// assigned automatically.
func (s *Store) InsertVerification(v *Verification) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}

	_, err := s.db.Exec(`
		INSERT INTO verifications (id, tx_id, verified, prompt_match, output_match,
			local_prompt_hash, stored_prompt_hash, local_output_hash, stored_output_hash,
			source_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.TxID, v.Verified, v.PromptMatch, v.OutputMatch,
		v.LocalPromptHash, v.StoredPromptHash, v.LocalOutputHash, v.StoredOutputHash,
		v.SourceURL, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}

	return nil
}

// GetVerification retrieves a verification by ID.
func (s *Store) GetVerification(id string) (*Verification, error) {
	var v Verification

	err := s.db.QueryRow(`
		SELECT id, tx_id, verified, prompt_match, output_match,
			local_prompt_hash, stored_prompt_hash, local_output_hash, stored_output_hash,
			source_url, created_at
		FROM verifications WHERE id = ?`, id,
	).Scan(&v.ID, &v.TxID, &v.Verified, &v.PromptMatch, &v.OutputMatch,
		&v.LocalPromptHash, &v.StoredPromptHash, &v.LocalOutputHash, &v.StoredOutputHash,
		&v.SourceURL, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get verification: %w", err)
	}

	return &v, nil
}

// GetVerificationsByTx retrieves verifications for a transaction ID,
// newest first. A non-positive limit returns all rows.
func (s *Store) GetVerificationsByTx(txID string, limit int) ([]Verification, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`
		SELECT id, tx_id, verified, prompt_match, output_match,
			local_prompt_hash, stored_prompt_hash, local_output_hash, stored_output_hash,
			source_url, created_at
		FROM verifications
		WHERE tx_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, txID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query verifications by tx: %w", err)
	}
	defer rows.Close()

	return scanVerifications(rows)
}

// GetRecentVerifications retrieves the most recent verifications,
// newest first. A non-positive limit returns all rows.
func (s *Store) GetRecentVerifications(limit int) ([]Verification, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`
		SELECT id, tx_id, verified, prompt_match, output_match,
			local_prompt_hash, stored_prompt_hash, local_output_hash, stored_output_hash,
			source_url, created_at
		FROM verifications
		ORDER BY created_at DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent verifications: %w", err)
	}
	defer rows.Close()

	return scanVerifications(rows)
}

// Counts returns the total number of recorded verifications and how many
// of them verified successfully.
func (s *Store) Counts() (total int64, verified int64, err error) {
	err = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(verified), 0) FROM verifications`).Scan(&total, &verified)
	if err != nil {
		return 0, 0, fmt.Errorf("count verifications: %w", err)
	}
	return total, verified, nil
}

// CacheProof stores a fetched proof payload, replacing any previous
// payload for the same transaction.
func (s *Store) CacheProof(p *CachedProof) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO proof_cache (tx_id, payload, source_url, fetched_at)
		VALUES (?, ?, ?, ?)`,
		p.TxID, p.Payload, p.SourceURL, p.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("cache proof: %w", err)
	}

	return nil
}

// GetCachedProof retrieves a cached proof payload by transaction ID.
func (s *Store) GetCachedProof(txID string) (*CachedProof, error) {
	var p CachedProof

	err := s.db.QueryRow(`
		SELECT tx_id, payload, source_url, fetched_at
		FROM proof_cache WHERE tx_id = ?`, txID,
	).Scan(&p.TxID, &p.Payload, &p.SourceURL, &p.FetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached proof: %w", err)
	}

	return &p, nil
}

// scanVerifications is a helper to scan verification rows into a slice.
func scanVerifications(rows *sql.Rows) ([]Verification, error) {
	var verifications []Verification

	for rows.Next() {
		var v Verification

		if err := rows.Scan(&v.ID, &v.TxID, &v.Verified, &v.PromptMatch, &v.OutputMatch,
			&v.LocalPromptHash, &v.StoredPromptHash, &v.LocalOutputHash, &v.StoredOutputHash,
			&v.SourceURL, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}

		verifications = append(verifications, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}

	return verifications, nil
}
